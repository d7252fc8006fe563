package pipeline

import (
	"fmt"
	"strings"
)

// DefaultTaskMarker prefixes every generation command in extraction output.
const DefaultTaskMarker = "Phase 2"

// DefaultSystemPrompt is the generation persona cached with the document.
const DefaultSystemPrompt = `# SYSTEM INSTRUCTION: FLASHCARD AUTHOR (ANKI MODE)

## Role
You are a subject-matter expert and exam writer. You turn source documents into
a two-phase study system:
* Phase 1 (Logical Index): a hierarchical outline where every leaf is one card unit.
* Phase 2 (Card Generator): flashcards for one selected outline section.

## Core rules
* Exhaustive: every figure, mechanism, definition, criterion and exception in the
  source becomes a question. Never summarise to save space.
* One knowledge unit per card. Never ask the same thing twice.
* Use only information present in the document. If something is missing, write
  "Missing data" instead of inventing it.
* Questions must be specific and have one checkable answer.

## Phase 1 template
[DOCUMENT NAME] - LOGICAL OUTLINE
I. [Major topic]
   0. [Overview]: definitions, classification, general principles
   1. [Subtopic]
      a. [Card unit]
      b. [Card unit]

## Phase 2 output format (strict)
* Output only card lines, one card per line, nothing before or after.
* Each line is "Question","Answer" with both fields wrapped in double quotes
  and separated by a comma.
* A double quote inside a field is written twice ("").
* Never put a real line break inside a field. Use <br> and <ul><li>...</li></ul>.`

// DefaultExtractorPrompt turns an outline into generation commands. The %s
// verb receives the task marker.
const DefaultExtractorPrompt = `DATA EXTRACTOR

TASK: Convert the outline below into a detailed list of generation commands.

RULES:
1. Never group a whole chapter into one command.
2. Split down to the smallest leaf (a., b., c., ...).
3. If a section has sub-items, create one command per sub-item.
4. Do not use "..." and do not summarise.

TARGET FORMAT: "%[1]s section [Roman]. [Number]. [Leaf]"

EXAMPLE:
%[1]s section I. Cardiology. 1. Heart failure. 0. Overview
%[1]s section I. Cardiology. 1. Heart failure. a. Symptoms
%[1]s section I. Cardiology. 1. Heart failure. b. Treatment

OUTPUT:
List the commands, one per line:`

const sourceOnly = `CRITICAL INSTRUCTION: Analyze the provided document ONLY. Do NOT use external knowledge. If the information is not in the document, state "Missing data".`

const formatReminder = `Output one card per line as "Question","Answer". Double any quote inside a field and use <br> instead of line breaks. Output nothing else.`

// Prompts holds the prompt texts used by a run.
type Prompts struct {
	System     string
	Extractor  string
	TaskMarker string
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		System:     DefaultSystemPrompt,
		Extractor:  DefaultExtractorPrompt,
		TaskMarker: DefaultTaskMarker,
	}
}

func (p Prompts) withDefaults() Prompts {
	d := DefaultPrompts()
	if p.System == "" {
		p.System = d.System
	}
	if p.Extractor == "" {
		p.Extractor = d.Extractor
	}
	if p.TaskMarker == "" {
		p.TaskMarker = d.TaskMarker
	}
	return p
}

// extractor renders the extractor prompt, filling in the task marker when the
// text carries a format verb.
func (p Prompts) extractor() string {
	if strings.Contains(p.Extractor, "%[1]s") {
		return fmt.Sprintf(p.Extractor, p.TaskMarker)
	}
	return p.Extractor
}

// OutlinePrompt is the Phase 1 command sent against the cached document.
func OutlinePrompt(document, focus string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "USER COMMAND: Phase 1 for %q.", document)
	if f := strings.TrimSpace(focus); f != "" {
		fmt.Fprintf(&sb, " Focus only on: %s.", f)
	}
	sb.WriteString("\n\n(Analyze the attached document)")
	return sb.String()
}

// ExtractionPrompt is the uncached Phase 2 call that lists generation commands.
func ExtractionPrompt(extractor, outline string) string {
	return extractor + "\n\n=== INPUT OUTLINE ===\n" + outline
}

// ExtractCommands returns the trimmed lines of text that start with marker,
// in order.
func ExtractCommands(text, marker string) []string {
	var commands []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, marker) {
			commands = append(commands, line)
		}
	}
	return commands
}

func historyBlock(history []string) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nALREADY COVERED (do not repeat these concepts):\n")
	for _, q := range history {
		sb.WriteString("- ")
		sb.WriteString(q)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
