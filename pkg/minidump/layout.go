package minidump

import (
	"errors"
	"fmt"

	"github.com/crashvault/minidump/pkg/dumpio"
)

// placedNode is the output of pass 1 for a single Writable: its absolute
// file offset, the size of its own contribution, the total size of its
// subtree (own bytes + every descendant + padding), and its already-laid-out
// children in emission order. Pass 2 walks this tree directly; it never
// calls freeze/children/sizeOfObject again, so the two passes are
// guaranteed to agree on every offset.
type placedNode struct {
	w        writable
	offset   uint32
	ownSize  uint32
	total    uint32
	children []placedNode
}

// maxUint32 bounds every offset/size field computed during layout, matching
// the wire format's u32 fields (property: "Overflow checks").
const maxUint32 = 1<<32 - 1

// buildLayout freezes w and every descendant, assigns each an absolute file
// offset starting at startOffset, and resolves every back-patch callback
// registered on a child as soon as that child's offset and total size are
// known — strictly before the parent that registered the callback is
// itself emitted in pass 2.
func buildLayout(w writable, startOffset uint64) (placedNode, error) {
	if on, ok := w.(offsetNotifiable); ok {
		if startOffset > maxUint32 {
			return placedNode{}, fmt.Errorf("%w: offset %d out of range", ErrFormat, startOffset)
		}
		if err := on.willWriteAtOffset(uint32(startOffset)); err != nil {
			return placedNode{}, err
		}
	}

	if err := w.freeze(); err != nil {
		return placedNode{}, err
	}

	ownSize := uint64(w.sizeOfObject())
	cursor := startOffset + ownSize
	if cursor > maxUint32 {
		return placedNode{}, fmt.Errorf("%w: node end offset %d out of range", ErrFormat, cursor)
	}

	children := w.children()
	placedChildren := make([]placedNode, 0, len(children))

	for _, child := range children {
		align := uint64(child.alignment())
		if align == 0 {
			align = 1
		}
		pad := (align - (cursor % align)) % align
		cursor += pad
		if cursor > maxUint32 {
			return placedNode{}, fmt.Errorf("%w: padded offset %d out of range", ErrFormat, cursor)
		}

		placedChild, err := buildLayout(child, cursor)
		if err != nil {
			return placedNode{}, err
		}

		child.resolve(LocationDescriptor{
			DataSize: placedChild.total,
			RVA:      placedChild.offset,
		})

		cursor = uint64(placedChild.offset) + uint64(placedChild.total)
		placedChildren = append(placedChildren, placedChild)
	}

	total := cursor - startOffset
	if total > maxUint32 {
		return placedNode{}, fmt.Errorf("%w: subtree size %d out of range", ErrFormat, total)
	}

	return placedNode{
		w:        w,
		offset:   uint32(startOffset),
		ownSize:  uint32(ownSize),
		total:    uint32(total),
		children: placedChildren,
	}, nil
}

// writeLayout emits a placedNode tree depth-first: this node's own bytes,
// then for each child zero padding up to its recorded offset followed by
// the child's own subtree. The padding length written here is always
// exactly the one computed during buildLayout, so alignment holds by
// construction.
func writeLayout(p *placedNode, w dumpio.Writer) error {
	if err := p.w.writeObject(w); err != nil {
		if errors.Is(err, ErrFormat) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	pos, err := w.CurrentOffset()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	cursor := uint64(pos)

	for i := range p.children {
		child := &p.children[i]

		padLen := uint64(child.offset) - cursor
		if padLen > 0 {
			if err := w.Write(make([]byte, padLen)); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
		}

		if err := writeLayout(child, w); err != nil {
			return err
		}

		cursor = uint64(child.offset) + uint64(child.total)
	}

	return nil
}
