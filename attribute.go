package mtapi

import "fmt"

// AttrID identifies an attribute slot within one entity kind's closed enum
// (spec §4.2). Each kind (Node/Action/Group/Queue/Task) defines its own set
// of ids starting from 0; ids are never shared across kinds.
type AttrID uint32

// attrSpec is the static, compile-time-known shape of one attribute: its
// size in bytes and whether it may be set after the owning entity is put
// into use.
type attrSpec struct {
	size     int
	readonly bool
}

// attributeBag is a typed, closed-enum config-slot store, per spec §4.2.
// Grounded on original_source/mtapi_c/include/embb/mtapi/c/mtapi_ext.h's
// attribute-table shape and the teacher's functional-options texture
// (eventloop/options.go) for the closed-set-of-known-keys discipline —
// there is no idiomatic Go library for this, it is C-API plumbing
// reimagined as a small map, so it stays on the standard library only.
type attributeBag struct {
	specs map[AttrID]attrSpec
	vals  map[AttrID][]byte
	// inUse, once set, makes every non-readonly-exempt attribute
	// immutable (spec §4.2: "Attributes are immutable after the entity is
	// put into use unless explicitly permitted").
	inUse bool
}

// Node attribute ids (spec §4.2/§4.11): read-only snapshots of the
// resolved configuration, populated at Initialize and frozen immediately.
const (
	AttrNodeMaxTasks AttrID = iota
	AttrNodeMaxActions
	AttrNodeMaxGroups
	AttrNodeMaxQueues
	AttrNodeMaxPriorities
	AttrNodeMaxWorkers
)

// Action attribute ids (spec §4.2/§4.4): a mix of read-only snapshots and
// a small range of user-defined slots a plugin implementation may use to
// stash its own per-action configuration before the action is enabled.
const (
	AttrActionGlobal AttrID = iota
	AttrActionDomainShared
	AttrActionAffinityCount
	AttrActionUser0
	AttrActionUser1
	AttrActionUser2
	AttrActionUser3
)

func u32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func boolBytes(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func newNodeAttributeBag(cfg *nodeConfig) *attributeBag {
	specs := map[AttrID]attrSpec{
		AttrNodeMaxTasks:      {size: 4, readonly: true},
		AttrNodeMaxActions:    {size: 4, readonly: true},
		AttrNodeMaxGroups:     {size: 4, readonly: true},
		AttrNodeMaxQueues:     {size: 4, readonly: true},
		AttrNodeMaxPriorities: {size: 4, readonly: true},
		AttrNodeMaxWorkers:    {size: 4, readonly: true},
	}
	b := newAttributeBag(specs)
	_ = b.SetMutable(AttrNodeMaxTasks, u32Bytes(uint32(cfg.maxTasks)))
	_ = b.SetMutable(AttrNodeMaxActions, u32Bytes(uint32(cfg.maxActions)))
	_ = b.SetMutable(AttrNodeMaxGroups, u32Bytes(uint32(cfg.maxGroups)))
	_ = b.SetMutable(AttrNodeMaxQueues, u32Bytes(uint32(cfg.maxQueues)))
	_ = b.SetMutable(AttrNodeMaxPriorities, u32Bytes(uint32(cfg.maxPriorities)))
	_ = b.SetMutable(AttrNodeMaxWorkers, u32Bytes(uint32(cfg.maxWorkers)))
	b.MarkInUse()
	return b
}

func newActionAttributeBag(cfg *actionConfig) *attributeBag {
	specs := map[AttrID]attrSpec{
		AttrActionGlobal:        {size: 1, readonly: true},
		AttrActionDomainShared:  {size: 1, readonly: true},
		AttrActionAffinityCount: {size: 4, readonly: true},
		AttrActionUser0:         {size: 8},
		AttrActionUser1:         {size: 8},
		AttrActionUser2:         {size: 8},
		AttrActionUser3:         {size: 8},
	}
	b := newAttributeBag(specs)
	_ = b.SetMutable(AttrActionGlobal, boolBytes(cfg.global))
	_ = b.SetMutable(AttrActionDomainShared, boolBytes(cfg.domainShared))
	_ = b.SetMutable(AttrActionAffinityCount, u32Bytes(uint32(len(cfg.affinity))))
	return b
}

func newAttributeBag(specs map[AttrID]attrSpec) *attributeBag {
	return &attributeBag{
		specs: specs,
		vals:  make(map[AttrID][]byte, len(specs)),
	}
}

// MarkInUse freezes non-explicitly-mutable attributes.
func (b *attributeBag) MarkInUse() {
	b.inUse = true
}

// Set validates and stores an attribute value. size is the size of the
// value pointed to by data; a mismatch against the attribute's static size
// is ErrAttrSize. An unknown id is ErrAttrNum. Setting a readonly
// attribute, or any attribute once the bag is in use, is ErrAttrReadonly.
func (b *attributeBag) Set(id AttrID, data []byte) error {
	spec, ok := b.specs[id]
	if !ok {
		return ErrAttrNum
	}
	if len(data) != spec.size {
		return ErrAttrSize
	}
	if spec.readonly {
		return ErrAttrReadonly
	}
	if b.inUse {
		return ErrAttrReadonly
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	b.vals[id] = buf
	return nil
}

// SetMutable is like Set but bypasses both the readonly flag and the in-use
// freeze; the package uses it to fill in readonly attribute values when a
// bag is built. It still enforces the id/size checks.
func (b *attributeBag) SetMutable(id AttrID, data []byte) error {
	spec, ok := b.specs[id]
	if !ok {
		return ErrAttrNum
	}
	if len(data) != spec.size {
		return ErrAttrSize
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	b.vals[id] = buf
	return nil
}

// Get copies the current value of id into data, whose length must match
// the attribute's static size.
func (b *attributeBag) Get(id AttrID, data []byte) error {
	spec, ok := b.specs[id]
	if !ok {
		return ErrAttrNum
	}
	if len(data) != spec.size {
		return ErrAttrSize
	}
	v, ok := b.vals[id]
	if !ok {
		return fmt.Errorf("mtapi: attribute %d not set: %w", id, ErrParameter)
	}
	copy(data, v)
	return nil
}
