package agent

import (
	"fmt"
	"strings"

	"github.com/nbenliogludev/go-browser-use/internal/controller"
	"github.com/nbenliogludev/go-browser-use/internal/llm"
)

// StepMemory keeps a short rolling log of executed actions for the prompt
// and detects repeated actions or repeated action pairs on the same page.
type StepMemory struct {
	lines    []string
	maxLines int

	fullLines []string

	lastActionKey string
	repeatCount   int
	loopThreshold int

	recentKeys    []string
	maxRecent     int
	patternLen    int
	patternCounts map[string]int

	loopTriggered bool
}

func NewStepMemory(maxLines, loopThreshold int) *StepMemory {
	if maxLines <= 0 {
		maxLines = 5
	}
	if loopThreshold <= 1 {
		loopThreshold = 2
	}
	return &StepMemory{
		maxLines:      maxLines,
		loopThreshold: loopThreshold,
		maxRecent:     10,
		patternLen:    2,
		patternCounts: make(map[string]int),
	}
}

func (m *StepMemory) makeKey(url string, action llm.ActionModel) string {
	return url + "|" + action.String()
}

// Add records an executed action and its outcome.
func (m *StepMemory) Add(step int, url string, action llm.ActionModel, res controller.ActionResult) {
	outcome := "ok"
	switch {
	case res.Error != "":
		outcome = "error: " + llm.TailRunes(res.Error, 200)
	case res.ExtractedContent != "" && res.IncludeInMemory:
		outcome = "ok: " + firstLine(res.ExtractedContent, 200)
	}
	m.push(fmt.Sprintf("step=%d url=%s action=%s -> %s", step, url, action, outcome))

	key := m.makeKey(url, action)

	if key == m.lastActionKey {
		m.repeatCount++
	} else {
		m.lastActionKey = key
		m.repeatCount = 1
	}

	m.recentKeys = append(m.recentKeys, key)
	if len(m.recentKeys) > m.maxRecent {
		m.recentKeys = m.recentKeys[len(m.recentKeys)-m.maxRecent:]
	}

	if len(m.recentKeys) >= m.patternLen {
		seq := m.recentKeys[len(m.recentKeys)-m.patternLen:]
		if !allEqual(seq) {
			m.patternCounts[strings.Join(seq, " -> ")]++
		}
	}
}

// ShouldBlock reports whether running action on url would continue a loop,
// along with a note for the model explaining why it was refused.
func (m *StepMemory) ShouldBlock(url string, action llm.ActionModel) (bool, string) {
	key := m.makeKey(url, action)

	if key == m.lastActionKey && m.repeatCount >= m.loopThreshold {
		return true, fmt.Sprintf(
			"SYSTEM NOTE: The same action (%s) has already been executed %d times in a row on this page. "+
				"Do NOT repeat it again. Choose a different action or finish if the goal is already achieved.",
			action, m.repeatCount,
		)
	}

	if len(m.recentKeys) >= m.patternLen-1 {
		seq := append([]string{}, m.recentKeys[len(m.recentKeys)-(m.patternLen-1):]...)
		seq = append(seq, key)
		if !allEqual(seq) {
			pattern := strings.Join(seq, " -> ")
			if m.patternCounts[pattern] >= m.loopThreshold-1 {
				return true, fmt.Sprintf(
					"SYSTEM NOTE: The sequence of %d actions (%s) has already occurred %d times. "+
						"Do NOT repeat this pattern. Try a different action (for example, moving to the next stage of the flow or finishing).",
					m.patternLen, pattern, m.patternCounts[pattern],
				)
			}
		}
	}

	return false, ""
}

func (m *StepMemory) AddSystemNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	m.push(note)
}

func (m *StepMemory) push(line string) {
	m.fullLines = append(m.fullLines, line)

	m.lines = append(m.lines, line)
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
}

func (m *StepMemory) HistoryLines() []string {
	if len(m.lines) == 0 {
		return nil
	}
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *StepMemory) HistoryString() string {
	return strings.Join(m.lines, "\n")
}

func (m *StepMemory) FullHistory() []string {
	if len(m.fullLines) == 0 {
		return nil
	}
	out := make([]string, len(m.fullLines))
	copy(out, m.fullLines)
	return out
}

func (m *StepMemory) MarkLoopTriggered() {
	m.loopTriggered = true
}

func (m *StepMemory) LoopTriggered() bool {
	return m.loopTriggered
}

func allEqual(keys []string) bool {
	for _, k := range keys[1:] {
		if k != keys[0] {
			return false
		}
	}
	return true
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if r := []rune(s); len(r) > max {
		s = string(r[:max]) + "..."
	}
	return s
}
