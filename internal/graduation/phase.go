package graduation

import "fairlaunch/internal/domain"

// ValidTransitions lists the allowed phase changes. GRADUATED is terminal.
var ValidTransitions = map[domain.GraduationPhase][]domain.GraduationPhase{
	domain.PhaseAccumulating: {domain.PhaseReady},
	domain.PhaseReady:        {domain.PhaseGraduated},
	domain.PhaseGraduated:    {},
}

// CanTransition reports whether a token may move from one phase to another.
func CanTransition(from, to domain.GraduationPhase) bool {
	for _, p := range ValidTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// PhaseInfo returns a short description of a phase for API consumers.
func PhaseInfo(p domain.GraduationPhase) string {
	switch p {
	case domain.PhaseAccumulating:
		return "raising funds on the bonding curve"
	case domain.PhaseReady:
		return "threshold reached, waiting for graduation"
	case domain.PhaseGraduated:
		return "liquidity moved to an external pool"
	default:
		return "unknown phase"
	}
}
