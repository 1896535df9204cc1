package web

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// galleryExts are the file types served from the image and thumb dirs.
var galleryExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".mp4":  true,
	".webm": true,
}

// Entry is one gallery item: a thumbnail, its full-size still or poster,
// and for bursts the encoded animation.
type Entry struct {
	Name      string
	Thumb     string
	Image     string
	Animation string
	ModTime   time.Time
}

// GalleryJSON is the JSON representation of the gallery listing.
type GalleryJSON struct {
	Items []EntryJSON `json:"items"`
}

// EntryJSON is the JSON representation of a gallery item.
type EntryJSON struct {
	Name      string `json:"name"`
	Thumb     string `json:"thumb"`
	Image     string `json:"image"`
	Animation string `json:"animation,omitempty"`
	Time      string `json:"time"`
}

// resolve maps a request name onto a file in dir. Names must be plain file
// names with a gallery extension.
func resolve(dir, name string) (string, bool) {
	if dir == "" || name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", false
	}
	if !galleryExts[strings.ToLower(filepath.Ext(name))] {
		return "", false
	}
	return filepath.Join(dir, name), true
}

// listGallery lists thumbnails newest first, pairing each with the image of
// the same name and any animation sharing its stem.
func listGallery(imagesDir, thumbsDir string) ([]Entry, error) {
	if thumbsDir == "" {
		return nil, nil
	}
	thumbs, err := os.ReadDir(thumbsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	animations := make(map[string]string)
	if imagesDir != "" {
		if images, err := os.ReadDir(imagesDir); err == nil {
			for _, e := range images {
				ext := strings.ToLower(filepath.Ext(e.Name()))
				if e.IsDir() || !galleryExts[ext] || ext == ".jpg" || ext == ".jpeg" {
					continue
				}
				animations[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = e.Name()
			}
		}
	}

	var entries []Entry
	for _, e := range thumbs {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !galleryExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		entry := Entry{
			Name:    stem,
			Thumb:   "/thumb/" + name,
			Image:   "/image/" + name,
			ModTime: info.ModTime(),
		}
		if anim, ok := animations[stem]; ok {
			entry.Animation = "/image/" + anim
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Name > entries[j].Name
	})
	return entries, nil
}

func formatGallery(entries []Entry) []byte {
	g := GalleryJSON{Items: make([]EntryJSON, 0, len(entries))}
	for _, e := range entries {
		g.Items = append(g.Items, EntryJSON{
			Name:      e.Name,
			Thumb:     e.Thumb,
			Image:     e.Image,
			Animation: e.Animation,
			Time:      e.ModTime.UTC().Format(time.RFC3339),
		})
	}
	data, _ := json.MarshalIndent(g, "", "  ")
	return data
}
