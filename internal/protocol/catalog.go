// Package protocol reads beamset templates from XML protocol files and
// planning-structure workflow presets from preferences datasets.
package protocol

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/osama-ammar/ray-scripts/internal/models"
)

// ErrTemplateNotFound indicates no beamset with the requested name exists in the protocol.
var ErrTemplateNotFound = errors.New("protocol beamset not found")

// Ref locates a beamset template: a folder, an optional file within it, and the beamset name.
// An empty File searches every .xml file in the folder.
type Ref struct {
	Folder string
	File   string
	Name   string
}

func (r Ref) String() string {
	if r.File == "" {
		return fmt.Sprintf("%s in %s", r.Name, r.Folder)
	}
	return fmt.Sprintf("%s in %s", r.Name, filepath.Join(r.Folder, r.File))
}

type protocolDoc struct {
	XMLName  xml.Name     `xml:"protocol"`
	Name     string       `xml:"name"`
	BeamSets []beamSetXML `xml:"beamset"`
}

type beamSetXML struct {
	Name        string    `xml:"name"`
	Technique   string    `xml:"technique"`
	Description string    `xml:"description"`
	Beams       []beamXML `xml:"beam"`
}

type beamXML struct {
	Number          int     `xml:"BeamNumber"`
	Name            string  `xml:"Name"`
	Description     string  `xml:"Description"`
	Technique       string  `xml:"DeliveryTechnique"`
	Energy          float64 `xml:"Energy"`
	GantryAngle     float64 `xml:"GantryAngle"`
	GantryStopAngle float64 `xml:"GantryStopAngle"`
	ArcDirection    string  `xml:"ArcRotationDirection"`
	CollimatorAngle float64 `xml:"CollimatorAngle"`
	CouchAngle      float64 `xml:"CouchAngle"`
	FieldWidth      float64 `xml:"FieldWidth"`
	Pitch           float64 `xml:"Pitch"`
	JawMode         string  `xml:"JawMode"`
}

// Catalog reads protocol files below a root directory. Parsed files are cached.
type Catalog struct {
	root  string
	mu    sync.Mutex
	cache map[string]*protocolDoc
}

// NewCatalog creates a catalog rooted at root. Relative folders in a Ref resolve against it.
func NewCatalog(root string) *Catalog {
	return &Catalog{root: root, cache: map[string]*protocolDoc{}}
}

// Template returns the named beamset with its beams.
func (c *Catalog) Template(ctx context.Context, ref Ref) (*models.BeamSetTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bs, err := c.find(ref)
	if err != nil {
		return nil, err
	}

	tmpl := &models.BeamSetTemplate{
		Name:        strings.TrimSpace(bs.Name),
		Technique:   strings.TrimSpace(bs.Technique),
		Description: strings.TrimSpace(bs.Description),
		Beams:       make([]models.Beam, 0, len(bs.Beams)),
	}
	for _, b := range bs.Beams {
		tmpl.Beams = append(tmpl.Beams, models.Beam{
			Number:          b.Number,
			Name:            strings.TrimSpace(b.Name),
			Description:     strings.TrimSpace(b.Description),
			Technique:       strings.TrimSpace(b.Technique),
			Energy:          b.Energy,
			GantryAngle:     b.GantryAngle,
			GantryStopAngle: b.GantryStopAngle,
			ArcDirection:    strings.TrimSpace(b.ArcDirection),
			CollimatorAngle: b.CollimatorAngle,
			CouchAngle:      b.CouchAngle,
			FieldWidth:      b.FieldWidth,
			Pitch:           b.Pitch,
			JawMode:         strings.TrimSpace(b.JawMode),
		})
	}
	return tmpl, nil
}

// Beams returns the beam list of the named beamset.
func (c *Catalog) Beams(ctx context.Context, ref Ref) ([]models.Beam, error) {
	tmpl, err := c.Template(ctx, ref)
	if err != nil {
		return nil, err
	}
	return tmpl.Beams, nil
}

// BeamSetNames lists the beamset names of a protocol file, for inspection commands.
func (c *Catalog) BeamSetNames(folder, file string) ([]string, error) {
	doc, err := c.load(filepath.Join(c.dir(folder), file))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.BeamSets))
	for _, bs := range doc.BeamSets {
		names = append(names, strings.TrimSpace(bs.Name))
	}
	return names, nil
}

func (c *Catalog) dir(folder string) string {
	if filepath.IsAbs(folder) || c.root == "" {
		return folder
	}
	return filepath.Join(c.root, folder)
}

func (c *Catalog) find(ref Ref) (*beamSetXML, error) {
	dir := c.dir(ref.Folder)

	var files []string
	if ref.File != "" {
		files = []string{filepath.Join(dir, ref.File)}
	} else {
		matches, err := filepath.Glob(filepath.Join(dir, "*.xml"))
		if err != nil {
			return nil, fmt.Errorf("list protocols: %w", err)
		}
		sort.Strings(matches)
		files = matches
	}

	for _, path := range files {
		doc, err := c.load(path)
		if err != nil {
			if ref.File != "" {
				return nil, err
			}
			continue
		}
		for i := range doc.BeamSets {
			if strings.TrimSpace(doc.BeamSets[i].Name) == ref.Name {
				return &doc.BeamSets[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, ref)
}

func (c *Catalog) load(path string) (*protocolDoc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.cache[path]; ok {
		return doc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol: %w", err)
	}
	var doc protocolDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse protocol %s: %w", filepath.Base(path), err)
	}
	c.cache[path] = &doc
	return &doc, nil
}
