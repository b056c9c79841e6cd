package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petrijr/actiflow/pkg/api"
)

// Parser turns activity-diagram text into an api.Definition.
//
// Only the activity subset needed to express workflows is supported:
// start/stop markers, activity nodes, explicit arrows,
// if/then/else/endif, repeat/repeat-while and while/endwhile loops
// (with arbitrary nesting), comments and node notes.
//
// Parse is total and deterministic: it is a single pass over the input
// lines and never hangs, even on cyclic or malformed diagrams.
// Unbalanced if/repeat/while blocks are auto-closed at end of input with
// a logged warning; they are never a structural error.
type Parser struct {
	logger *zap.Logger
}

// New creates a Parser. A nil logger defaults to zap.NewNop().
func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse parses diagram text with a throwaway Parser and no logging.
func Parse(name, text string) (*api.Definition, error) {
	return New(nil).Parse(name, text)
}

// Parse parses the given diagram text into a new Definition.
// Empty input yields an empty Definition, not an error.
func (p *Parser) Parse(name, text string) (*api.Definition, error) {
	b := &builder{
		def: &api.Definition{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: time.Now().UTC(),
		},
		nodeIndex: make(map[string]int),
		logger:    p.logger,
	}

	for _, raw := range strings.Split(text, "\n") {
		b.line(raw)
	}
	b.finish()

	return b.def, nil
}

var (
	reStartArrow  = regexp.MustCompile(`^\[\*\]\s*-+>\s*(\S+)$`)
	reStopArrow   = regexp.MustCompile(`^(\S+)\s*-+>\s*\[\*\]$`)
	reArrow       = regexp.MustCompile(`^(\S+)\s*-+>\s*(\S+)\s*(?::\s*(.*))?$`)
	reActivity    = regexp.MustCompile(`^:(.+);$`)
	reIf          = regexp.MustCompile(`^if\s*\((.*?)\)\s*then(?:\s*\((.*?)\))?$`)
	reElse        = regexp.MustCompile(`^else(?:\s*\((.*?)\))?$`)
	reEndif       = regexp.MustCompile(`^endif$`)
	reRepeat      = regexp.MustCompile(`^repeat$`)
	reRepeatWhile = regexp.MustCompile(`^repeat\s+while\s*\((.*?)\)(?:\s+is\s*\((.*?)\))?(?:\s+not\s*\((.*?)\))?$`)
	reWhile       = regexp.MustCompile(`^while\s*\((.*?)\)(?:\s+is\s*\((.*?)\))?$`)
	reEndwhile    = regexp.MustCompile(`^endwhile(?:\s*\((.*?)\))?$`)
	reNoteInline  = regexp.MustCompile(`^note(?:\s+(?:left|right|top|bottom))?(?:\s+of\s+(\S+))?\s*:\s*(.*)$`)
	reNoteBlock   = regexp.MustCompile(`^note(?:\s+(?:left|right|top|bottom))?(?:\s+of\s+(\S+))?$`)
	reTitle       = regexp.MustCompile(`^title\s+(.*)$`)
)

const stopNodeID = "__stop__"

type frameKind int

const (
	frameIf frameKind = iota
	frameWhile
	frameRepeat
)

func (k frameKind) String() string {
	switch k {
	case frameIf:
		return "if"
	case frameWhile:
		return "while"
	default:
		return "repeat"
	}
}

// exit is a dangling outgoing edge: the next node that appears in the flow
// receives a transition from nodeID carrying label.
type exit struct {
	nodeID string
	label  string
}

type frame struct {
	kind frameKind

	// if/while: the decision node created for the construct.
	decisionID string

	// if: exits of completed branches, merged again at endif.
	merged   []exit
	elseSeen bool

	// repeat: first node of the loop body, target of the back edge.
	headID  string
	headSet bool

	// while: label for the exit edge at endwhile when none is given there.
	exitLabel string
}

type builder struct {
	def       *api.Definition
	nodeIndex map[string]int

	danglers []exit
	frames   []frame

	// pendingStart marks the next flow node as a start point
	// (set by the "start" keyword).
	pendingStart bool

	// lastNodeID receives inline and block notes.
	lastNodeID string

	// note block accumulation
	inNote     bool
	noteTarget string
	noteLines  []string

	seq     int // generated node ids
	edgeSeq int

	logger *zap.Logger
}

func (b *builder) line(raw string) {
	if b.inNote {
		if strings.TrimSpace(raw) == "end note" {
			b.attachNote(b.noteTarget, strings.Join(b.noteLines, "\n"))
			b.inNote = false
			b.noteLines = nil
			return
		}
		// Note bodies are stored verbatim.
		b.noteLines = append(b.noteLines, raw)
		return
	}

	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	// Comments never affect node or edge counts.
	if strings.HasPrefix(line, "'") || strings.HasPrefix(line, "//") {
		return
	}
	if line == "@startuml" || line == "@enduml" {
		return
	}

	switch {
	case line == "start":
		b.pendingStart = true

	case line == "stop" || line == "end":
		stop := b.ensureStopNode()
		b.connectDanglers(stop)

	case reTitle.MatchString(line):
		if b.def.Name == "" {
			b.def.Name = reTitle.FindStringSubmatch(line)[1]
		}

	case reStartArrow.MatchString(line):
		m := reStartArrow.FindStringSubmatch(line)
		id := b.ensureNode(m[1])
		b.def.StartPoints = append(b.def.StartPoints, id)

	case reStopArrow.MatchString(line):
		m := reStopArrow.FindStringSubmatch(line)
		from := b.ensureNode(m[1])
		b.addTransition(from, b.ensureStopNode(), "")

	case reIf.MatchString(line):
		m := reIf.FindStringSubmatch(line)
		thenLabel := m[2]
		if thenLabel == "" {
			thenLabel = "yes"
		}
		d := b.newDecisionNode("if", m[1])
		b.connectDanglers(d)
		b.danglers = []exit{{nodeID: d, label: thenLabel}}
		b.frames = append(b.frames, frame{kind: frameIf, decisionID: d})

	case reElse.MatchString(line):
		f := b.top(frameIf)
		if f == nil {
			b.logger.Warn("else without matching if, ignored")
			return
		}
		label := reElse.FindStringSubmatch(line)[1]
		if label == "" {
			label = "no"
		}
		f.merged = append(f.merged, b.danglers...)
		f.elseSeen = true
		b.danglers = []exit{{nodeID: f.decisionID, label: label}}

	case reEndif.MatchString(line):
		if !b.popIf() {
			b.logger.Warn("endif without matching if, ignored")
		}

	case reRepeatWhile.MatchString(line):
		m := reRepeatWhile.FindStringSubmatch(line)
		if !b.popRepeat(m[1], m[2], m[3]) {
			b.logger.Warn("repeat while without matching repeat, ignored")
		}

	case reRepeat.MatchString(line):
		b.frames = append(b.frames, frame{kind: frameRepeat})

	case reWhile.MatchString(line):
		m := reWhile.FindStringSubmatch(line)
		yes := m[2]
		if yes == "" {
			yes = "yes"
		}
		d := b.newDecisionNode("while", m[1])
		b.connectDanglers(d)
		b.danglers = []exit{{nodeID: d, label: yes}}
		b.frames = append(b.frames, frame{kind: frameWhile, decisionID: d, exitLabel: "no"})

	case reEndwhile.MatchString(line):
		label := reEndwhile.FindStringSubmatch(line)[1]
		if !b.popWhile(label) {
			b.logger.Warn("endwhile without matching while, ignored")
		}

	case reActivity.MatchString(line):
		label := strings.TrimSpace(reActivity.FindStringSubmatch(line)[1])
		b.flowNode(b.ensureNode(label))

	case reNoteInline.MatchString(line):
		m := reNoteInline.FindStringSubmatch(line)
		target := b.noteTargetFor(m[1])
		b.attachNote(target, m[2])

	case reNoteBlock.MatchString(line):
		m := reNoteBlock.FindStringSubmatch(line)
		b.inNote = true
		b.noteTarget = b.noteTargetFor(m[1])
		b.noteLines = nil

	case reArrow.MatchString(line):
		m := reArrow.FindStringSubmatch(line)
		from := b.ensureNode(m[1])
		to := b.ensureNode(m[2])
		b.addTransition(from, to, strings.TrimSpace(m[3]))
		b.lastNodeID = to

	default:
		b.logger.Warn("unrecognized diagram line, skipped", zap.String("line", line))
	}
}

// finish auto-closes any construct left open at end of input.
func (b *builder) finish() {
	if b.inNote {
		b.logger.Warn("unterminated note block, auto-closed")
		b.attachNote(b.noteTarget, strings.Join(b.noteLines, "\n"))
		b.inNote = false
	}
	for len(b.frames) > 0 {
		kind := b.frames[len(b.frames)-1].kind
		b.logger.Warn("unterminated block, auto-closed at end of input",
			zap.String("construct", kind.String()))
		switch kind {
		case frameIf:
			b.popIf()
		case frameWhile:
			b.popWhile("")
		case frameRepeat:
			// No condition line ever appeared; there is nothing to lower.
			b.frames = b.frames[:len(b.frames)-1]
		}
	}
}

// flowNode routes the implicit control flow through the given node:
// all dangling exits gain a transition onto it and it becomes the sole
// dangling exit.
func (b *builder) flowNode(id string) {
	for _, d := range b.danglers {
		if d.nodeID == id {
			continue
		}
		b.addTransition(d.nodeID, id, d.label)
	}
	b.danglers = []exit{{nodeID: id}}
	b.lastNodeID = id

	if b.pendingStart {
		b.def.StartPoints = append(b.def.StartPoints, id)
		b.pendingStart = false
	}
	// Every enclosing repeat without a head yet loops back to this node.
	for i := range b.frames {
		f := &b.frames[i]
		if f.kind == frameRepeat && !f.headSet {
			f.headID = id
			f.headSet = true
		}
	}
}

func (b *builder) connectDanglers(to string) {
	for _, d := range b.danglers {
		b.addTransition(d.nodeID, to, d.label)
	}
	b.danglers = nil
}

// top returns the innermost frame if it has the wanted kind.
func (b *builder) top(kind frameKind) *frame {
	if len(b.frames) == 0 {
		return nil
	}
	f := &b.frames[len(b.frames)-1]
	if f.kind != kind {
		return nil
	}
	return f
}

func (b *builder) popIf() bool {
	f := b.top(frameIf)
	if f == nil {
		return false
	}
	b.frames = b.frames[:len(b.frames)-1]

	merged := append(f.merged, b.danglers...)
	if !f.elseSeen {
		// Without an else branch the decision itself still needs an exit
		// for the false case.
		merged = append(merged, exit{nodeID: f.decisionID, label: "no"})
	}
	b.danglers = merged
	return true
}

func (b *builder) popWhile(exitLabel string) bool {
	f := b.top(frameWhile)
	if f == nil {
		return false
	}
	b.frames = b.frames[:len(b.frames)-1]

	// Loop body flows back into the condition.
	for _, d := range b.danglers {
		if d.nodeID == f.decisionID {
			continue
		}
		b.addTransition(d.nodeID, f.decisionID, d.label)
	}
	if exitLabel == "" {
		exitLabel = f.exitLabel
	}
	b.danglers = []exit{{nodeID: f.decisionID, label: exitLabel}}
	return true
}

func (b *builder) popRepeat(cond, yesLabel, noLabel string) bool {
	f := b.top(frameRepeat)
	if f == nil {
		return false
	}
	b.frames = b.frames[:len(b.frames)-1]

	if yesLabel == "" {
		yesLabel = "yes"
	}
	if noLabel == "" {
		noLabel = "no"
	}

	d := b.newDecisionNode("repeat", cond)
	b.connectDanglers(d)
	if f.headSet {
		// The back edge: choosing yesLabel returns to the loop head.
		b.addTransition(d, f.headID, yesLabel)
	} else {
		b.logger.Warn("repeat loop with empty body, back edge omitted")
	}
	b.danglers = []exit{{nodeID: d, label: noLabel}}
	return true
}

// ensureNode returns the id of the node with the given label, creating it
// on first reference. Activity nodes are keyed by label, so arrows can
// reference them by name.
func (b *builder) ensureNode(label string) string {
	if i, ok := b.nodeIndex[label]; ok {
		return b.def.Nodes[i].ID
	}
	b.nodeIndex[label] = len(b.def.Nodes)
	b.def.Nodes = append(b.def.Nodes, api.Node{ID: label, Label: label})
	return label
}

func (b *builder) ensureStopNode() string {
	if i, ok := b.nodeIndex[stopNodeID]; ok {
		return b.def.Nodes[i].ID
	}
	b.nodeIndex[stopNodeID] = len(b.def.Nodes)
	b.def.Nodes = append(b.def.Nodes, api.Node{ID: stopNodeID, Label: "Stop"})
	return stopNodeID
}

// newDecisionNode creates a synthetic node for a lowered construct.
// The sequence number keeps ids unique across arbitrarily nested blocks.
func (b *builder) newDecisionNode(kind, cond string) string {
	b.seq++
	id := fmt.Sprintf("%s-%d", kind, b.seq)
	b.nodeIndex[id] = len(b.def.Nodes)
	b.def.Nodes = append(b.def.Nodes, api.Node{ID: id, Label: cond})
	return id
}

func (b *builder) addTransition(from, to, label string) {
	b.edgeSeq++
	b.def.Transitions = append(b.def.Transitions, api.Transition{
		ID:     fmt.Sprintf("t-%d", b.edgeSeq),
		FromID: from,
		ToID:   to,
		Label:  label,
		Order:  b.edgeSeq,
	})
}

func (b *builder) noteTargetFor(explicit string) string {
	if explicit != "" {
		return b.ensureNode(explicit)
	}
	return b.lastNodeID
}

func (b *builder) attachNote(nodeID, text string) {
	if nodeID == "" {
		b.logger.Warn("note with no preceding node, dropped")
		return
	}
	i, ok := b.nodeIndex[nodeID]
	if !ok {
		b.logger.Warn("note target not found, dropped", zap.String("node", nodeID))
		return
	}
	n := &b.def.Nodes[i]
	if n.Note != "" {
		n.Note += "\n"
	}
	n.Note += text
}
