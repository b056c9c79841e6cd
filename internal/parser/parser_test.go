package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const simpleChoice = `@startuml
[*] --> A
:A;
A --> B
A --> C
@enduml`

func TestParseSimpleChoice(t *testing.T) {
	t.Parallel()

	def, err := Parse("simple", simpleChoice)
	require.NoError(t, err)

	require.Len(t, def.Nodes, 3)
	require.Len(t, def.Transitions, 2)
	require.Equal(t, []string{"A"}, def.StartPoints)

	out := def.Outgoing("A")
	require.Len(t, out, 2)
	require.Equal(t, "B", out[0].ToID)
	require.Equal(t, "C", out[1].ToID)
}

func TestParseLinearFlow(t *testing.T) {
	t.Parallel()

	def, err := Parse("linear", `@startuml
[*] --> Start
:Start;
Start --> End
@enduml`)
	require.NoError(t, err)

	require.Equal(t, "Start", def.StartNodeID())
	out := def.Outgoing("Start")
	require.Len(t, out, 1)
	require.Equal(t, "End", out[0].ToID)
	require.Empty(t, def.Outgoing("End"), "End must be terminal")
}

func TestParseEmptyInput(t *testing.T) {
	t.Parallel()

	def, err := Parse("empty", "")
	require.NoError(t, err)
	require.Empty(t, def.Nodes)
	require.Empty(t, def.Transitions)
	require.Empty(t, def.StartPoints)
}

func TestParseCommentsDoNotAffectCounts(t *testing.T) {
	t.Parallel()

	withComments := `@startuml
' a quote comment
[*] --> A
// a slash comment
:A;
' another one
A --> B
A --> C
@enduml`

	plain, err := Parse("x", simpleChoice)
	require.NoError(t, err)
	commented, err := Parse("x", withComments)
	require.NoError(t, err)

	require.Equal(t, len(plain.Nodes), len(commented.Nodes))
	require.Equal(t, len(plain.Transitions), len(commented.Transitions))
}

func TestParseIdempotence(t *testing.T) {
	t.Parallel()

	text := `@startuml
start
:Ask;
if (likes pizza?) then (yes)
:Pizza;
else (no)
:Salad;
endif
:Done;
stop
@enduml`

	a, err := Parse("x", text)
	require.NoError(t, err)
	b, err := Parse("x", text)
	require.NoError(t, err)

	require.Equal(t, len(a.Nodes), len(b.Nodes))
	require.Equal(t, len(a.Transitions), len(b.Transitions))
	for i := range a.Nodes {
		require.Equal(t, a.Nodes[i].ID, b.Nodes[i].ID)
	}
	for i := range a.Transitions {
		require.Equal(t, a.Transitions[i].FromID, b.Transitions[i].FromID)
		require.Equal(t, a.Transitions[i].ToID, b.Transitions[i].ToID)
		require.Equal(t, a.Transitions[i].Label, b.Transitions[i].Label)
	}
}

func TestParseIfElseLowering(t *testing.T) {
	t.Parallel()

	def, err := Parse("pizza", `start
:Ask;
if (likes pizza?) then (yes)
:Pizza;
else (no)
:Salad;
endif
:Done;
stop`)
	require.NoError(t, err)

	// Ask, decision, Pizza, Salad, Done, stop
	require.Len(t, def.Nodes, 6)
	require.Len(t, def.Transitions, 6)

	out := def.Outgoing("if-1")
	require.Len(t, out, 2)
	require.Equal(t, "yes", out[0].Label)
	require.Equal(t, "Pizza", out[0].ToID)
	require.Equal(t, "no", out[1].Label)
	require.Equal(t, "Salad", out[1].ToID)

	// Both branches merge into Done.
	require.Len(t, def.Outgoing("Pizza"), 1)
	require.Len(t, def.Outgoing("Salad"), 1)
	require.Equal(t, "Done", def.Outgoing("Pizza")[0].ToID)
	require.Equal(t, "Done", def.Outgoing("Salad")[0].ToID)
}

func TestParseIfWithoutElse(t *testing.T) {
	t.Parallel()

	def, err := Parse("x", `start
:Ask;
if (extra?) then (yes)
:Extra;
endif
:Done;`)
	require.NoError(t, err)

	out := def.Outgoing("if-1")
	require.Len(t, out, 2)
	// yes goes through the branch, no skips straight to Done.
	require.Equal(t, "Extra", out[0].ToID)
	require.Equal(t, "Done", out[1].ToID)
	require.Equal(t, "no", out[1].Label)
}

func TestParseRepeatLoopCycle(t *testing.T) {
	t.Parallel()

	def, err := Parse("loop", `@startuml
start
repeat
:Work;
repeat while (more?)
stop
@enduml`)
	require.NoError(t, err)

	require.Equal(t, "Work", def.StartNodeID())

	out := def.Outgoing("repeat-1")
	require.Len(t, out, 2)
	require.Equal(t, "yes", out[0].Label)
	require.Equal(t, "Work", out[0].ToID, "back edge returns to the loop head")
	require.Equal(t, "no", out[1].Label)

	// Work flows into the condition.
	workOut := def.Outgoing("Work")
	require.Len(t, workOut, 1)
	require.Equal(t, "repeat-1", workOut[0].ToID)
}

func TestParseWhileLoopCycle(t *testing.T) {
	t.Parallel()

	def, err := Parse("while", `start
:Init;
while (items?) is (take)
:Process;
endwhile (done)
:Finish;`)
	require.NoError(t, err)

	out := def.Outgoing("while-1")
	require.Len(t, out, 2)
	require.Equal(t, "take", out[0].Label)
	require.Equal(t, "Process", out[0].ToID)
	require.Equal(t, "done", out[1].Label)
	require.Equal(t, "Finish", out[1].ToID)

	// Loop body flows back into the condition.
	procOut := def.Outgoing("Process")
	require.Len(t, procOut, 1)
	require.Equal(t, "while-1", procOut[0].ToID)
}

func TestParseNestedConstructs(t *testing.T) {
	t.Parallel()

	def, err := Parse("nested", `start
repeat
:Fetch;
if (ok?) then (yes)
:Store;
else (no)
:Skip;
endif
repeat while (more?)
stop`)
	require.NoError(t, err)

	// Generated node ids stay unique across nesting levels.
	seen := map[string]bool{}
	for _, n := range def.Nodes {
		require.False(t, seen[n.ID], "duplicate node id %s", n.ID)
		seen[n.ID] = true
	}

	// The repeat decision loops back to Fetch from both branch ends.
	var repeatID string
	for _, n := range def.Nodes {
		if n.ID != "Fetch" && len(def.Outgoing(n.ID)) == 2 && n.Label == "more?" {
			repeatID = n.ID
		}
	}
	require.NotEmpty(t, repeatID)
	out := def.Outgoing(repeatID)
	require.Equal(t, "Fetch", out[0].ToID)
}

func TestParseTransitionsResolve(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		simpleChoice,
		"start\nrepeat\n:W;\nrepeat while (x?)\nstop",
		"start\n:A;\nif (c?) then (y)\n:B;\nendif\n:C;\nstop",
		"A --> B : go\nB --> [*]",
	} {
		def, err := Parse("x", text)
		require.NoError(t, err)
		for _, tr := range def.Transitions {
			_, ok := def.NodeByID(tr.FromID)
			require.True(t, ok, "from %s unresolved in %q", tr.FromID, text)
			_, ok = def.NodeByID(tr.ToID)
			require.True(t, ok, "to %s unresolved in %q", tr.ToID, text)
		}
	}
}

func TestParseMultipleStartPoints(t *testing.T) {
	t.Parallel()

	def, err := Parse("multi", `[*] --> A
[*] --> B
A --> C
B --> C`)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, def.StartPoints)
	require.Equal(t, "A", def.StartNodeID(), "first start point wins")
}

func TestParseInlineNote(t *testing.T) {
	t.Parallel()

	def, err := Parse("note", `start
:Lookup;
note right: {"action":"get_nearby_businesses","params":{"radius":"1000"}}
stop`)
	require.NoError(t, err)

	n, ok := def.NodeByID("Lookup")
	require.True(t, ok)
	require.Equal(t, `{"action":"get_nearby_businesses","params":{"radius":"1000"}}`, n.Note)
}

func TestParseBlockNoteVerbatim(t *testing.T) {
	t.Parallel()

	def, err := Parse("note", `:Lookup;
note right
line one
  ' not a comment inside a note
line two
end note`)
	require.NoError(t, err)

	n, ok := def.NodeByID("Lookup")
	require.True(t, ok)
	require.Equal(t, "line one\n  ' not a comment inside a note\nline two", n.Note)
}

func TestParseUnterminatedIfAutoCloses(t *testing.T) {
	t.Parallel()

	def, err := Parse("broken", `start
:A;
if (x?) then (yes)
:B;`)
	require.NoError(t, err)

	// A, decision, B. The dangling else exit simply never connects.
	require.Len(t, def.Nodes, 3)
	out := def.Outgoing("if-1")
	require.Len(t, out, 1)
	require.Equal(t, "B", out[0].ToID)
}

func TestParseStrayEndifIgnored(t *testing.T) {
	t.Parallel()

	def, err := Parse("stray", `:A;
endif
endwhile
repeat while (x?)
:B;`)
	require.NoError(t, err)

	// The stray closers are ignored entirely; A chains straight to B.
	_, ok := def.NodeByID("A")
	require.True(t, ok)
	out := def.Outgoing("A")
	require.Len(t, out, 1)
	require.Equal(t, "B", out[0].ToID)
}

func TestParseExplicitArrowLabels(t *testing.T) {
	t.Parallel()

	def, err := Parse("labels", `[*] --> Menu
:Menu;
Menu --> Search : find
Menu --> Quit : leave`)
	require.NoError(t, err)

	out := def.Outgoing("Menu")
	require.Len(t, out, 2)
	require.Equal(t, "find", out[0].Label)
	require.Equal(t, "leave", out[1].Label)
}

func TestParseStopMarker(t *testing.T) {
	t.Parallel()

	def, err := Parse("stop", `start
:A;
stop`)
	require.NoError(t, err)

	out := def.Outgoing("A")
	require.Len(t, out, 1)
	stop := out[0].ToID
	require.Empty(t, def.Outgoing(stop))
}
