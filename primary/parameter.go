package primary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vocbase/config"
	"vocbase/ids"
)

// CollectionType distinguishes a plain document collection from an edge
// collection, per §6.3's parameter.json "type" key.
type CollectionType string

const (
	TypeDocument CollectionType = "document"
	TypeEdge     CollectionType = "edge"
)

// Parameter is the decoded form of a collection directory's
// parameter.json, §6.3's only human-editable control surface. It always
// wins over config.Config's process-wide defaults for the collection that
// owns it.
type Parameter struct {
	CID         ids.Tick       `json:"cid"`
	Name        string         `json:"name"`
	Type        CollectionType `json:"type"`
	MaxSize     int64          `json:"max_size"`
	WaitForSync bool           `json:"wait_for_sync"`
	IsVolatile  bool           `json:"is_volatile"`
}

const parameterFileName = "parameter.json"

// LoadParameter reads dir/parameter.json. A missing max_size is filled in
// from cfg.DefaultMaxSize (max_size is rounded up to cfg.PageSize either
// way) and a missing type becomes "document". wait_for_sync is not taken
// from cfg; when omitted it is false.
func LoadParameter(dir string, cfg *config.Config) (Parameter, error) {
	path := filepath.Join(dir, parameterFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Parameter{}, fmt.Errorf("read %s: %w", path, err)
	}
	var p Parameter
	if err := json.Unmarshal(data, &p); err != nil {
		return Parameter{}, fmt.Errorf("parse %s: %w", path, err)
	}
	p.applyDefaults(cfg)
	return p, nil
}

// Save writes p to dir/parameter.json, creating dir if necessary.
func (p Parameter) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create collection directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode parameter.json: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, parameterFileName), data, 0644)
}

func (p *Parameter) applyDefaults(cfg *config.Config) {
	if p.MaxSize == 0 {
		p.MaxSize = roundUpToPage(cfg.DefaultMaxSize, cfg.PageSize)
	} else {
		p.MaxSize = roundUpToPage(p.MaxSize, cfg.PageSize)
	}
	if p.Type == "" {
		p.Type = TypeDocument
	}
}

func roundUpToPage(n, pageSize int64) int64 {
	if pageSize <= 0 {
		pageSize = 4096
	}
	return (n + pageSize - 1) / pageSize * pageSize
}
