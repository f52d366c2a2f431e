// Package bundles writes audit packages to disk as a directory tree and a
// zip archive. Layout follows control order, so two packages over the
// same data differ only in generated timestamps.
package bundles

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yokoszn/CreatureGRC/internal/domain"
	"github.com/yokoszn/CreatureGRC/internal/infra/crypto"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
)

const PackageFormatVersion = "v1"

const (
	SummaryFile  = "00-SUMMARY.json"
	ReadmeFile   = "README.md"
	ManifestFile = "manifest.json"
)

type Exporter struct {
	Root string
}

func NewExporter(root string) (*Exporter, error) {
	if root == "" {
		return nil, errors.New("package output directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &Exporter{Root: root}, nil
}

type Summary struct {
	Version           string                    `json:"version"`
	PackageID         string                    `json:"package_id"`
	Client            string                    `json:"client"`
	Framework         string                    `json:"framework"`
	Period            domain.Period             `json:"period"`
	GeneratedAt       string                    `json:"generated_at"`
	ManifestHash      string                    `json:"manifest_hash"`
	Stats             domain.PackageStats       `json:"stats"`
	IntegrityWarnings []domain.IntegrityWarning `json:"integrity_warnings"`
}

type Manifest struct {
	Version      string            `json:"version"`
	ManifestHash string            `json:"manifest_hash"`
	Controls     []ManifestControl `json:"controls"`
}

type ManifestControl struct {
	ControlCode string             `json:"control_code"`
	Section     string             `json:"section"`
	Status      string             `json:"implementation_status"`
	Evidence    []ManifestEvidence `json:"evidence"`
	Findings    []string           `json:"findings"`
}

type ManifestEvidence struct {
	ID          string `json:"id"`
	ContentHash string `json:"content_hash"`
	File        string `json:"file,omitempty"`
}

// Write materializes pkg under Root and zips it. Evidence that cannot be
// read is listed without a file; the assembler has already warned on it.
func (e *Exporter) Write(ctx context.Context, pkg domain.AuditPackage, blobs usecase.BlobReader) (string, string, error) {
	dir := filepath.Join(e.Root, packageDirName(pkg))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", err
	}

	manifest := Manifest{Version: PackageFormatVersion, ManifestHash: pkg.ManifestHash, Controls: []ManifestControl{}}
	for _, c := range pkg.Controls {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		section := SectionName(c.Control)
		mc := ManifestControl{
			ControlCode: c.Control.Code,
			Section:     section,
			Status:      string(c.Implementation.ImplementationStatus),
			Evidence:    []ManifestEvidence{},
			Findings:    []string{},
		}
		for _, ev := range c.Evidence {
			me := ManifestEvidence{ID: ev.ID, ContentHash: ev.ContentHash}
			rel := path.Join(section, "evidence", safeName(c.Control.Code), evidenceFileName(ev))
			if blobs != nil && copyBlob(ctx, blobs, ev.StoragePath, filepath.Join(dir, filepath.FromSlash(rel))) == nil {
				me.File = rel
			}
			mc.Evidence = append(mc.Evidence, me)
		}
		for _, f := range c.OpenFindings {
			mc.Findings = append(mc.Findings, f.ID)
		}
		if err := writeJSON(filepath.Join(dir, section, safeName(c.Control.Code)+".json"), c); err != nil {
			return "", "", err
		}
		manifest.Controls = append(manifest.Controls, mc)
	}

	warnings := pkg.IntegrityWarnings
	if warnings == nil {
		warnings = []domain.IntegrityWarning{}
	}
	summary := Summary{
		Version:           PackageFormatVersion,
		PackageID:         pkg.ID,
		Client:            pkg.Client,
		Framework:         pkg.Framework,
		Period:            pkg.Period,
		GeneratedAt:       pkg.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		ManifestHash:      pkg.ManifestHash,
		Stats:             pkg.Stats,
		IntegrityWarnings: warnings,
	}
	if err := writeJSON(filepath.Join(dir, SummaryFile), summary); err != nil {
		return "", "", err
	}
	if err := writeCanonical(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(filepath.Join(dir, ReadmeFile), []byte(renderReadme(pkg)), 0o640); err != nil {
		return "", "", err
	}

	archive := dir + ".zip"
	if err := zipDir(dir, archive, pkg); err != nil {
		return "", "", fmt.Errorf("archive: %w", err)
	}
	return dir, archive, nil
}

func packageDirName(pkg domain.AuditPackage) string {
	id := pkg.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.Join([]string{
		safeName(pkg.Client),
		safeName(pkg.Framework),
		pkg.Period.String(),
		pkg.CreatedAt.UTC().Format("20060102T150405"),
		id,
	}, "_")
}

// evidenceFileName names a copied blob by its hash, keeping the extension
// of the record's logical name.
func evidenceFileName(ev domain.EvidenceRecord) string {
	name := path.Base(ev.StoragePath)
	if len(ev.ContentHash) == 64 {
		name = ev.ContentHash
	}
	ext := strings.ToLower(path.Ext(ev.Name))
	if len(ext) > 16 || strings.ContainsAny(ext, "/\\: ") {
		ext = ""
	}
	return name + ext
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "unnamed"
	}
	return s
}

// SectionName is the directory of a control: <domain_code>-<domain-slug>.
func SectionName(c domain.Control) string {
	code := safeName(c.DomainCode)
	if c.DomainCode == "" {
		code = "00"
	}
	if s := slug(c.DomainName); s != "" {
		return code + "-" + s
	}
	return code
}

func writeJSON(p string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(p, append(b, '\n'))
}

func writeCanonical(p string, v any) error {
	b, err := crypto.Canonicalize(v)
	if err != nil {
		return err
	}
	return writeFile(p, b)
}

func writeFile(p string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o640)
}

func copyBlob(ctx context.Context, blobs usecase.BlobReader, storagePath, dst string) error {
	rc, err := blobs.Open(ctx, storagePath)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func zipDir(dir, archive string, pkg domain.AuditPackage) error {
	tmp := archive + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		hdr := &zip.FileHeader{
			Name:     path.Join(filepath.Base(dir), filepath.ToSlash(rel)),
			Method:   zip.Deflate,
			Modified: pkg.CreatedAt.UTC(),
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	closeErr := zw.Close()
	if err := out.Close(); closeErr == nil {
		closeErr = err
	}
	if walkErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		return errors.Join(walkErr, closeErr)
	}
	return os.Rename(tmp, archive)
}
