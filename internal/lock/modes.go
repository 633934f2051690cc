// Package lock implements a multi-granularity, transactional lock
// manager: a resource table keyed by (oid, class_oid), per-resource
// holder/waiter/non-2PL lists, the Upgrader Positioning Rule, lock
// escalation, and a wait-for-graph deadlock detector. Grounded on
// transaction/lock_manager.h and the request/release/grant algorithm
// in the accompanying design notes.
package lock

import "fmt"

// Mode is a lock mode in the manager's lattice. The zero value is
// NULL, the bottom element.
type Mode int8

const (
	ModeNULL Mode = iota
	ModeIS
	ModeS
	ModeIX
	ModeSIX
	ModeU
	ModeX
	ModeSchS
	ModeSchIX
	ModeSchM
	modeCount
)

func (m Mode) String() string {
	switch m {
	case ModeNULL:
		return "NULL"
	case ModeIS:
		return "IS"
	case ModeS:
		return "S"
	case ModeIX:
		return "IX"
	case ModeSIX:
		return "SIX"
	case ModeU:
		return "U"
	case ModeX:
		return "X"
	case ModeSchS:
		return "SCH_S"
	case ModeSchIX:
		return "SCH_IX"
	case ModeSchM:
		return "SCH_M"
	default:
		return fmt.Sprintf("Mode(%d)", int8(m))
	}
}

// convTable[a][b] is the least upper bound of a and b: the mode that
// dominates both in the lattice. It is built once in init from the
// pairwise rules below rather than hand-transcribed as a literal
// matrix, since the lattice's join is derivable from a handful of
// dominance facts and that derivation is easier to audit than 100
// hand-typed cells.
var convTable [modeCount][modeCount]Mode

// dominance order used to build the lattice. Index = rank; modes with
// a higher rank dominate (are "at least as strong as") every mode with
// a lower rank they're comparable to. SIX dominates both S and IX;
// schema modes form their own parallel chain used only by schema
// (DDL-style) locking and do not interact with the object-lock chain
// except through NULL and X.
var chainRanks = map[Mode]int{
	ModeNULL: 0,
	ModeIS:   1,
	ModeS:    2,
	ModeIX:   2,
	ModeSIX:  3,
	ModeU:    3,
	ModeX:    4,
}

var schemaChainRanks = map[Mode]int{
	ModeNULL:  0,
	ModeSchS:  1,
	ModeSchIX: 2,
	ModeSchM:  3,
}

func init() {
	for a := Mode(0); a < modeCount; a++ {
		for b := Mode(0); b < modeCount; b++ {
			convTable[a][b] = join(a, b)
		}
	}
}

func join(a, b Mode) Mode {
	if a == b {
		return a
	}
	if a == ModeNULL {
		return b
	}
	if b == ModeNULL {
		return a
	}
	if a == ModeX || b == ModeX {
		return ModeX
	}
	if a == ModeSchM || b == ModeSchM {
		return ModeSchM
	}
	if _, aSchema := schemaChainRanks[a]; aSchema {
		if _, bSchema := schemaChainRanks[b]; bSchema {
			if schemaChainRanks[a] > schemaChainRanks[b] {
				return a
			}
			return b
		}
	}
	// Object-lock chain joins.
	switch {
	case (a == ModeS && b == ModeIX) || (a == ModeIX && b == ModeS):
		return ModeSIX
	case (a == ModeS && b == ModeSIX) || (a == ModeSIX && b == ModeS):
		return ModeSIX
	case (a == ModeIX && b == ModeSIX) || (a == ModeSIX && b == ModeIX):
		return ModeSIX
	case (a == ModeIS && b == ModeS) || (a == ModeS && b == ModeIS):
		return ModeS
	case (a == ModeIS && b == ModeIX) || (a == ModeIX && b == ModeIS):
		return ModeIX
	case (a == ModeIS && b == ModeSIX) || (a == ModeSIX && b == ModeIS):
		return ModeSIX
	case (a == ModeIS && b == ModeU) || (a == ModeU && b == ModeIS):
		return ModeX
	case (a == ModeS && b == ModeU) || (a == ModeU && b == ModeS):
		return ModeX
	case (a == ModeIX && b == ModeU) || (a == ModeU && b == ModeIX):
		return ModeX
	case (a == ModeSIX && b == ModeU) || (a == ModeU && b == ModeSIX):
		return ModeX
	default:
		if ra, ok := chainRanks[a]; ok {
			if rb, ok2 := chainRanks[b]; ok2 {
				if ra > rb {
					return a
				}
				return b
			}
		}
		return ModeX
	}
}

// Conv returns the least upper bound of requested and held — the mode
// a holder's grant is converted to when it also requests requested
// (spec §4.9).
func Conv(requested, held Mode) Mode {
	return convTable[requested][held]
}

// compatible[req][held] reports whether req may be granted while held
// is already granted to some other transaction.
var compatible = [modeCount][modeCount]bool{
	ModeNULL:  {ModeNULL: true, ModeIS: true, ModeS: true, ModeIX: true, ModeSIX: true, ModeU: true, ModeX: true, ModeSchS: true, ModeSchIX: true, ModeSchM: true},
	ModeIS:    {ModeNULL: true, ModeIS: true, ModeS: true, ModeIX: true, ModeSIX: true, ModeU: true, ModeX: false},
	ModeS:     {ModeNULL: true, ModeIS: true, ModeS: true, ModeIX: false, ModeSIX: false, ModeU: true, ModeX: false},
	ModeIX:    {ModeNULL: true, ModeIS: true, ModeS: false, ModeIX: true, ModeSIX: false, ModeU: false, ModeX: false},
	ModeSIX:   {ModeNULL: true, ModeIS: true, ModeS: false, ModeIX: false, ModeSIX: false, ModeU: false, ModeX: false},
	ModeU:     {ModeNULL: true, ModeIS: true, ModeS: true, ModeIX: false, ModeSIX: false, ModeU: false, ModeX: false},
	ModeX:     {ModeNULL: true, ModeIS: false, ModeS: false, ModeIX: false, ModeSIX: false, ModeU: false, ModeX: false},
	ModeSchS:  {ModeNULL: true, ModeSchS: true, ModeSchIX: true, ModeSchM: false},
	ModeSchIX: {ModeNULL: true, ModeSchS: true, ModeSchIX: true, ModeSchM: false},
	ModeSchM:  {ModeNULL: true, ModeSchS: false, ModeSchIX: false, ModeSchM: false},
}

// Comp reports whether req is compatible with held (spec §4.9).
func Comp(req, held Mode) bool {
	return compatible[req][held]
}

// Escalates reports whether already holding classMode at the class
// level makes a separate instance-level grant of instMode redundant
// (spec §4.10 step 1). X at the class covers every instance request.
// S or SIX at the class covers instance-level IS/S requests (the
// class-level shared lock already guarantees the read view). Intention
// modes (IS, IX) at the class never cover an instance request on their
// own — they only announce intent, so the instance still needs its own
// entry.
func Escalates(classMode, instMode Mode) bool {
	if classMode == ModeX {
		return true
	}
	if (classMode == ModeS || classMode == ModeSIX) && (instMode == ModeIS || instMode == ModeS) {
		return true
	}
	return false
}
