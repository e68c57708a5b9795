package treesitter

import "unsafe"

// tsNodeFull maps the TSNode struct including the id pointer.
// TSNode layout (64-bit):
//
//	Offset  0: context[4] (16 bytes)
//	Offset 16: id (8 bytes, pointer to Subtree union)
//	Offset 24: tree (8 bytes, pointer to TSTree)
//
// sitter.Node wraps this as: struct { c C.TSNode }.
type tsNodeFull struct {
	context [4]uint32
	id      unsafe.Pointer
	tree    unsafe.Pointer
}

// readNodeID returns the address of the node's subtree slot. It is unique
// among the live nodes of one tree: heap subtrees are distinct allocations
// and inline leaves live in distinct slots of their parent's child array.
// The nodePtr must point to a sitter.Node.
func readNodeID(nodePtr unsafe.Pointer) uint64 {
	full := (*tsNodeFull)(nodePtr)

	return uint64(uintptr(full.id))
}
