package constants

// TerminalState terminal health state
type TerminalState string

const (
	TerminalStateHealthy   TerminalState = "HEALTHY"   // Probing normally, eligible for assignment
	TerminalStateDegraded  TerminalState = "DEGRADED"  // Probe failed, repair ladder in progress
	TerminalStateDead      TerminalState = "DEAD"      // Ladder exhausted, awaiting replacement
	TerminalStateReplacing TerminalState = "REPLACING" // Replacement process being launched
	TerminalStateRetired   TerminalState = "RETIRED"   // Id permanently retired (replaced or shrunk away)
)

func (s TerminalState) String() string {
	return string(s)
}

// RepairLevel rung of the repair ladder, 1 (least destructive) to 5
type RepairLevel int

const (
	RepairLevelNone      RepairLevel = 0
	RepairLevelGentle    RepairLevel = 1 // benign no-op signal
	RepairLevelContext   RepairLevel = 2 // dump and restore working state
	RepairLevelInterrupt RepairLevel = 3 // progressive interrupt
	RepairLevelRestart   RepairLevel = 4 // restart hosted process in place
	RepairLevelKill      RepairLevel = 5 // kill and replace, id retired

	MaxRepairLevel = RepairLevelKill
)

var repairLevelNames = map[RepairLevel]string{
	RepairLevelNone:      "NONE",
	RepairLevelGentle:    "GENTLE",
	RepairLevelContext:   "CONTEXT",
	RepairLevelInterrupt: "INTERRUPT",
	RepairLevelRestart:   "RESTART",
	RepairLevelKill:      "KILL",
}

func (l RepairLevel) String() string {
	if name, ok := repairLevelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether l is one of the five ladder rungs
func (l RepairLevel) Valid() bool {
	return l >= RepairLevelGentle && l <= RepairLevelKill
}
