package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matejnovak/govsicrawl/internal/store"
)

/*
Export dumps a crawled corpus as a JSON hierarchy: a root "Sites" node,
one child per site keyed by domain, and one grandchild per page under
that site. Each page node's size is the byte count of whatever was
persisted for it (HTML content or binary page_data), not the size on
the wire. Inter-page links are not part of the export.
*/

// Node is one entry in the exported hierarchy.
type Node struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Children []Node `json:"children"`
}

// Run writes the corpus rooted at st as JSON to <outputDir>/data.json.
func Run(st *store.Store, outputDir string) (string, error) {
	root, err := Build(st)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", outputDir, err)
	}

	path := filepath.Join(outputDir, "data.json")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	return path, nil
}

// Build assembles the export hierarchy in memory without writing it,
// primarily so tests can assert on its shape directly.
func Build(st *store.Store) (Node, error) {
	root := Node{Name: "Sites", Children: []Node{}}

	sites, err := st.ListSites()
	if err != nil {
		return root, fmt.Errorf("list sites: %w", err)
	}

	for _, site := range sites {
		siteNode := Node{Name: site.Domain, Children: []Node{}}

		pages, err := st.ListPagesBySite(site.ID)
		if err != nil {
			return root, fmt.Errorf("list pages for site %s: %w", site.Domain, err)
		}

		for _, page := range pages {
			size, err := st.PageSize(page.ID)
			if err != nil {
				return root, fmt.Errorf("page size for %s: %w", page.URL, err)
			}
			siteNode.Children = append(siteNode.Children, Node{
				Name:     page.URL,
				Type:     string(page.PageTypeCode),
				Size:     size,
				Children: []Node{},
			})
		}

		root.Children = append(root.Children, siteNode)
	}

	return root, nil
}
