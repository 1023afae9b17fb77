package store

import "sort"

// normalize fills ThreadOptions defaults in place.
func (o *ThreadOptions) normalize() {
	if o.MaxDepth <= 0 || o.MaxDepth > MaxDepth {
		o.MaxDepth = MaxDepth
	}
	if o.Page <= 0 {
		o.Page = 1
	}
	if o.PageSize <= 0 || o.PageSize > 100 {
		o.PageSize = 20
	}
	if o.Order != OrderOldest {
		o.Order = OrderNewest
	}
}

// paginate computes page metadata and the [lo,hi) window into a list of
// length total.
func paginate(total, page, pageSize int) (Pagination, int, int) {
	pages := 0
	if total > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	lo := (page - 1) * pageSize
	if lo > total {
		lo = total
	}
	hi := lo + pageSize
	if hi > total {
		hi = total
	}
	return Pagination{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    pages,
		HasNext:  page*pageSize < total,
		HasPrev:  page > 1 && total > 0,
	}, lo, hi
}

// BuildForest assembles one post's bulk-loaded comments into a paginated,
// depth-bounded forest. It is shared by every CommentStore implementation so
// that thread shape never depends on the backend.
//
// Hidden comments stay in the forest: a hidden parent must still anchor its
// visible children. Redaction is a projection concern, not a tree concern.
func BuildForest(comments []Comment, opts ThreadOptions) ([]ThreadNode, Pagination) {
	opts.normalize()

	children := make(map[string][]Comment)
	var roots []Comment
	for _, c := range comments {
		if c.ParentID == nil {
			roots = append(roots, c)
		} else {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	newestFirst := opts.Order == OrderNewest
	sortLevel(roots, newestFirst)
	for id := range children {
		sortLevel(children[id], newestFirst)
	}

	pg, lo, hi := paginate(len(roots), opts.Page, opts.PageSize)

	nodes := make([]ThreadNode, 0, hi-lo)
	for _, root := range roots[lo:hi] {
		nodes = append(nodes, attach(root, children, 0, opts.MaxDepth))
	}
	return nodes, pg
}

// attach builds the node for c and recurses until the depth bound, where
// remaining direct children become a count-only placeholder.
func attach(c Comment, children map[string][]Comment, level, maxDepth int) ThreadNode {
	node := ThreadNode{Comment: c, Replies: []ThreadNode{}}
	kids := children[c.ID]
	if len(kids) == 0 {
		return node
	}
	if level >= maxDepth {
		node.OmittedReplies = len(kids)
		return node
	}
	for _, k := range kids {
		node.Replies = append(node.Replies, attach(k, children, level+1, maxDepth))
	}
	return node
}

func sortLevel(cs []Comment, newestFirst bool) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			if newestFirst {
				return cs[i].CreatedAt.After(cs[j].CreatedAt)
			}
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		if newestFirst {
			return cs[i].ID > cs[j].ID
		}
		return cs[i].ID < cs[j].ID
	})
}
