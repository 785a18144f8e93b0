// Package knowledge loads documents into the vector index: chunking,
// embedding, the document registry and seed-directory sync.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alta-ny/chatbot/internal/models"
)

var errNoFrontmatter = errors.New("no frontmatter found")

// Snapshot is a saved listings fetch: one JSON file per run.
type Snapshot struct {
	FetchedAt       string           `json:"fetchedAt"`
	Location        string           `json:"location,omitempty"`
	Source          string           `json:"source"`
	TotalProperties int              `json:"totalProperties"`
	Properties      []map[string]any `json:"properties"`
}

// ScanDirs walks each directory in dirs and returns a document for every
// .txt and .md file, plus one document per property in listing snapshot
// .json files. Missing directories are skipped.
func ScanDirs(dirs []string) ([]models.Document, error) {
	var docs []models.Document

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			// Skip directories that don't exist
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat knowledge dir %s: %w", dir, err)
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			var found []models.Document
			switch strings.ToLower(filepath.Ext(path)) {
			case ".txt", ".md":
				doc, err := readTextFile(path)
				if err != nil {
					return err
				}
				found = []models.Document{doc}
			case ".json":
				found, err = readSnapshot(path)
				if err != nil {
					// Not every JSON file is a snapshot.
					return nil
				}
			}
			docs = append(docs, found...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan knowledge dir %s: %w", dir, err)
		}
	}

	return docs, nil
}

func readTextFile(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	doc := models.Document{
		Filename: filepath.Base(path),
		Source:   "seed",
		Content:  string(data),
		Metadata: map[string]any{"fileType": strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")},
	}

	meta, body, err := parseFrontmatter(data)
	if errors.Is(err, errNoFrontmatter) {
		return doc, nil
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("%s: %w", path, err)
	}

	doc.Content = body
	if v, ok := meta["filename"].(string); ok && v != "" {
		doc.Filename = v
	}
	if v, ok := meta["source"].(string); ok && v != "" {
		doc.Source = v
	}
	delete(meta, "filename")
	delete(meta, "source")
	for k, v := range meta {
		doc.Metadata[k] = v
	}
	return doc, nil
}

// parseFrontmatter splits a file into its YAML frontmatter and body.
// Frontmatter is delimited by --- markers.
func parseFrontmatter(data []byte) (map[string]any, string, error) {
	content := strings.TrimSpace(string(data))

	if !strings.HasPrefix(content, "---") {
		return nil, "", errNoFrontmatter
	}

	rest := content[3:] // skip opening ---
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, "", fmt.Errorf("no closing frontmatter delimiter")
	}

	// Keep the newline before the closing marker so block scalars end the
	// way YAML defines them.
	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(rest[:idx+1]), &meta); err != nil {
		return nil, "", fmt.Errorf("parse yaml: %w", err)
	}

	body := strings.TrimSpace(rest[idx+len("\n---"):])
	return meta, body, nil
}

func readSnapshot(path string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Properties == nil {
		return nil, fmt.Errorf("%s is not a listings snapshot", path)
	}

	filename := filepath.Base(path)
	docs := make([]models.Document, 0, len(snap.Properties))
	for n, p := range snap.Properties {
		id := scalarString(p["id"])
		if id == "" {
			id = fmt.Sprint(n)
		}

		meta := map[string]any{"fileType": "json", "propertyId": id}
		for _, k := range []string{"title", "price", "address", "beds", "baths", "sqft", "propertyType", "link", "lotSize", "yearBuilt"} {
			if v, ok := p[k]; ok && v != nil && v != "N/A" {
				meta[k] = v
			}
		}
		if snap.Location != "" {
			meta["location"] = snap.Location
		}
		if snap.FetchedAt != "" {
			meta["fetchedAt"] = snap.FetchedAt
		}

		docs = append(docs, models.Document{
			ID:       filename + "#" + id,
			Filename: filename,
			Source:   snap.Source,
			Content:  PropertyText(p, snap.Location),
			Metadata: meta,
		})
	}
	return docs, nil
}

// PropertyText renders a listing as the text block that gets embedded.
func PropertyText(p map[string]any, location string) string {
	field := func(k, fallback string) string {
		if v := scalarString(p[k]); v != "" {
			return v
		}
		return fallback
	}

	lines := []string{
		"Property: " + field("title", "N/A"),
		"Price: " + field("price", "N/A"),
		"Address: " + field("address", "N/A"),
		"Bedrooms: " + field("beds", "N/A"),
		"Bathrooms: " + field("baths", "N/A"),
		"Square Feet: " + field("sqft", "N/A"),
		"Property Type: " + field("propertyType", "residential"),
	}
	if location != "" {
		lines = append(lines, "Location: "+location)
	}
	lines = append(lines,
		"Lot Size: "+field("lotSize", "N/A"),
		"Year Built: "+field("yearBuilt", "N/A"),
	)
	if d := field("description", ""); d != "" {
		lines = append(lines, "Description: "+d)
	}

	// Any remaining scalar fields are kept so nothing in the listing is lost.
	known := map[string]bool{
		"id": true, "title": true, "price": true, "address": true, "beds": true, "baths": true,
		"sqft": true, "propertyType": true, "lotSize": true, "yearBuilt": true, "description": true,
	}
	var extra []string
	for k, v := range p {
		if known[k] || v == nil {
			continue
		}
		switch v.(type) {
		case string, float64, bool:
			extra = append(extra, k+": "+scalarString(v))
		}
	}
	sort.Strings(extra)
	lines = append(lines, extra...)

	return strings.Join(lines, "\n")
}

// scalarString formats JSON scalars without exponent notation.
func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
