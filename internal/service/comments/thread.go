package comments

import "github.com/vovakirdan/eventure-server/internal/store"

// Node is a comment with its direct replies.
type Node struct {
	Comment    *store.Comment `json:"comment"`
	AuthorName string         `json:"authorName"`
	Replies    []*Node        `json:"replies"`
}

// Thread builds the reply forest of a flat comment list sorted by creation time.
// A comment whose parent is absent from the list becomes a root. Roots and reply
// lists keep the input order.
func Thread(comments []*store.Comment) []*Node {
	index := make(map[int64]*Node, len(comments))
	nodes := make([]*Node, 0, len(comments))
	for _, c := range comments {
		n := &Node{Comment: c, Replies: []*Node{}}
		index[c.ID] = n
		nodes = append(nodes, n)
	}

	roots := make([]*Node, 0)
	for _, n := range nodes {
		parentID := n.Comment.ParentCommentID
		if parentID != nil && *parentID != n.Comment.ID {
			if parent, ok := index[*parentID]; ok {
				parent.Replies = append(parent.Replies, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}
