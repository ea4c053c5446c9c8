// Package mips emits MIPS assembly from the allocated TAC stream.
// Each TAC instruction expands through a fixed template; operands with
// an allocated register use it directly, all others are materialized
// through fp/gp-relative loads and stores on the scratch registers.
package mips

import (
	"decafc/src/backend/regfile"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// register is one physical MIPS register.
type register struct {
	id   int
	name string
}

// registerFile is the MIPS register file. The allocatable set is the
// caller-saved temporaries $t0-$t9 followed by $s0-$s7; $v0 and $v1
// serve as scratch for memory operands and $v0 doubles as the call
// result register of the calling convention.
type registerFile struct {
	gpr     []*register
	scratch [2]*register
	sp      *register
	fp      *register
	gp      *register
	ra      *register
}

// ---------------------
// ----- Constants -----
// ---------------------

// NumGeneralPurposeRegs is the size of the allocatable register set
// handed to the colouring allocator.
const NumGeneralPurposeRegs = 18

// ---------------------
// ----- Functions -----
// ---------------------

func (r *register) Id() int        { return r.id }
func (r *register) String() string { return r.name }

// CreateRegisterFile returns the MIPS register file.
func CreateRegisterFile() regfile.RegisterFile {
	names := []string{
		"$t0", "$t1", "$t2", "$t3", "$t4", "$t5", "$t6", "$t7",
		"$t8", "$t9",
		"$s0", "$s1", "$s2", "$s3", "$s4", "$s5", "$s6", "$s7",
	}
	rf := &registerFile{
		gpr: make([]*register, len(names)),
		sp:  &register{29, "$sp"},
		fp:  &register{30, "$fp"},
		gp:  &register{28, "$gp"},
		ra:  &register{31, "$ra"},
	}
	ids := []int{8, 9, 10, 11, 12, 13, 14, 15, 24, 25, 16, 17, 18, 19, 20, 21, 22, 23}
	for i1, e1 := range names {
		rf.gpr[i1] = &register{ids[i1], e1}
	}
	rf.scratch[0] = &register{2, "$v0"}
	rf.scratch[1] = &register{3, "$v1"}
	return rf
}

func (rf *registerFile) K() int { return len(rf.gpr) }

func (rf *registerFile) Get(i int) regfile.Register { return rf.gpr[i] }

func (rf *registerFile) SP() regfile.Register { return rf.sp }

func (rf *registerFile) FP() regfile.Register { return rf.fp }

func (rf *registerFile) GP() regfile.Register { return rf.gp }

func (rf *registerFile) RA() regfile.Register { return rf.ra }

// Result returns $v0, where the calling convention leaves call
// results.
func (rf *registerFile) Result() regfile.Register { return rf.scratch[0] }

func (rf *registerFile) Scratch(i int) regfile.Register { return rf.scratch[i] }
