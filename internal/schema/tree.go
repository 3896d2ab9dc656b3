package schema

import (
	"fmt"
	"strings"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

// NodeType classifies one tree node.
type NodeType string

const (
	NodeDatabase   NodeType = "database"
	NodeSchema     NodeType = "schema"
	NodeTable      NodeType = "table"
	NodeView       NodeType = "view"
	NodeColumn     NodeType = "column"
	NodeIndex      NodeType = "index"
	NodeConstraint NodeType = "constraint"
)

// TreeNode is one entry in the database > schema > table/view > column tree.
// Nodes live in a flat arena keyed by id; children are id lists, so loading
// children later means inserting entries and updating one parent's list
// instead of mutating a shared nested structure.
type TreeNode struct {
	ID          string
	Name        string
	Type        NodeType
	Icon        string
	Path        []string
	ParentID    string
	HasChildren bool
	ChildIDs    []string
	Metadata    map[string]any
}

// tree is the arena for one connection's schema snapshot.
type tree struct {
	rootIDs []string
	nodes   map[string]*TreeNode
	byName  map[string][]string
	byType  map[NodeType][]string
	byPath  map[string]string
}

func newTree() *tree {
	return &tree{
		nodes:  make(map[string]*TreeNode),
		byName: make(map[string][]string),
		byType: make(map[NodeType][]string),
		byPath: make(map[string]string),
	}
}

func (t *tree) add(node *TreeNode, root bool) {
	t.nodes[node.ID] = node
	if root {
		t.rootIDs = append(t.rootIDs, node.ID)
	}
	name := strings.ToLower(node.Name)
	t.byName[name] = append(t.byName[name], node.ID)
	t.byType[node.Type] = append(t.byType[node.Type], node.ID)
	t.byPath[strings.Join(node.Path, ".")] = node.ID
	if node.ParentID != "" {
		if parent, ok := t.nodes[node.ParentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, node.ID)
			parent.HasChildren = true
		}
	}
}

func (t *tree) children(id string) []*TreeNode {
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]*TreeNode, 0, len(node.ChildIDs))
	for _, cid := range node.ChildIDs {
		if child, ok := t.nodes[cid]; ok {
			out = append(out, child)
		}
	}
	return out
}

func (t *tree) roots() []*TreeNode {
	out := make([]*TreeNode, 0, len(t.rootIDs))
	for _, id := range t.rootIDs {
		out = append(out, t.nodes[id])
	}
	return out
}

// nodeID joins the connection id and the path segments with dots, producing
// a fully qualified, stable node identifier.
func nodeID(connectionID string, path []string) string {
	if len(path) == 0 {
		return connectionID
	}
	return connectionID + "." + strings.Join(path, ".")
}

// buildTree transforms a flat introspection result into the arena tree.
func buildTree(connectionID string, result *engine.IntrospectionResult) *tree {
	t := newTree()

	dbName := result.DatabaseName
	if dbName == "" {
		dbName = "default"
	}
	dbPath := []string{dbName}
	dbNode := &TreeNode{
		ID:          nodeID(connectionID, dbPath),
		Name:        dbName,
		Type:        NodeDatabase,
		Icon:        "database",
		Path:        dbPath,
		HasChildren: len(result.Schemas) > 0,
		Metadata:    map[string]any{"schemaCount": len(result.Schemas)},
	}
	t.add(dbNode, true)

	for _, sch := range result.Schemas {
		schemaPath := append(append([]string{}, dbPath...), sch.Name)
		schemaNode := &TreeNode{
			ID:       nodeID(connectionID, schemaPath),
			Name:     sch.Name,
			Type:     NodeSchema,
			Icon:     "folder",
			Path:     schemaPath,
			ParentID: dbNode.ID,
			Metadata: map[string]any{
				"tableCount": len(sch.Tables),
				"viewCount":  len(sch.Views),
			},
		}
		t.add(schemaNode, false)

		for _, table := range sch.Tables {
			addRelation(t, connectionID, schemaNode.ID, schemaPath, table.Name, NodeTable, "table", table.Columns, map[string]any{
				"rowCount":  table.RowCount,
				"sizeBytes": table.SizeBytes,
			})
		}
		for _, view := range sch.Views {
			addRelation(t, connectionID, schemaNode.ID, schemaPath, view.Name, NodeView, "view", view.Columns, map[string]any{
				"definition": view.Definition,
			})
		}
	}
	return t
}

func addRelation(t *tree, connectionID, parentID string, schemaPath []string, name string, typ NodeType, icon string, columns []engine.ColumnInfo, meta map[string]any) {
	relPath := append(append([]string{}, schemaPath...), name)
	relNode := &TreeNode{
		ID:       nodeID(connectionID, relPath),
		Name:     name,
		Type:     typ,
		Icon:     icon,
		Path:     relPath,
		ParentID: parentID,
		Metadata: meta,
	}
	t.add(relNode, false)

	for _, col := range columns {
		colPath := append(append([]string{}, relPath...), col.Name)
		colNode := &TreeNode{
			ID:       nodeID(connectionID, colPath),
			Name:     col.Name,
			Type:     NodeColumn,
			Icon:     "column",
			Path:     colPath,
			ParentID: relNode.ID,
			Metadata: map[string]any{
				"dataType":   col.DataType,
				"nullable":   col.Nullable,
				"primaryKey": col.PrimaryKey,
				"foreignKey": col.ForeignKey,
			},
		}
		t.add(colNode, false)
	}
}

// validateTree checks the structural invariants of a snapshot: parent links
// resolve, child lists imply HasChildren, and paths match node ids. Used by
// tests and by the service in debug builds of the demo data.
func validateTree(connectionID string, t *tree) error {
	for id, node := range t.nodes {
		if node.ParentID != "" {
			if _, ok := t.nodes[node.ParentID]; !ok {
				return fmt.Errorf("node %s references missing parent %s", id, node.ParentID)
			}
		}
		if len(node.ChildIDs) > 0 && !node.HasChildren {
			return fmt.Errorf("node %s has children but HasChildren is false", id)
		}
		if nodeID(connectionID, node.Path) != id {
			return fmt.Errorf("node %s path %v does not match its id", id, node.Path)
		}
	}
	return nil
}
