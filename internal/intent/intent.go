// Package intent labels short Arabic or English inputs with a conversational
// intent. Classification is a pure function of the text, the pattern tables
// the Classifier was built with, and the caller-supplied turn history.
package intent

import (
	"strings"
	"unicode/utf8"
)

// Intent is the closed set of labels Detect produces.
type Intent string

const (
	Command    Intent = "command"
	Inquiry    Intent = "inquiry"
	Discussion Intent = "discussion"
	Security   Intent = "security"
	Build      Intent = "build"
)

// All lists every intent.
var All = []Intent{Command, Inquiry, Discussion, Security, Build}

// Valid reports whether i is one of the defined intents.
func (i Intent) Valid() bool {
	for _, known := range All {
		if i == known {
			return true
		}
	}
	return false
}

// Thresholds used by the precedence rules.
const (
	buildLengthThreshold        = 30
	continuationLengthThreshold = 100
	shortInputThreshold         = 50
	buildMatchThreshold         = 2
)

// Classifier evaluates tagged predicates in a fixed precedence order.
type Classifier struct {
	predicates []Predicate
}

// New builds a classifier from one or more language tables.
func New(langs ...Language) *Classifier {
	c := &Classifier{}
	for _, lang := range langs {
		c.predicates = append(c.predicates, lang.Predicates...)
	}
	return c
}

// Default covers Arabic and English.
var Default = New(Arabic, English)

// Detect classifies text with the Default classifier.
func Detect(text string, history []Turn) Intent {
	return Default.Detect(text, history)
}

// Signals counts how many predicates of each signal matched text.
type Signals [signalCount]int

// Scan evaluates every predicate against text.
func (c *Classifier) Scan(text string) Signals {
	var s Signals
	for _, p := range c.predicates {
		if p.Match(text) {
			s[p.Signal]++
		}
	}
	return s
}

// Detect returns the intent for text. Security wins outright. Build signals
// dominate command, discussion and question signals. Short unmatched input
// is treated as discussion, anything else as inquiry.
func (c *Classifier) Detect(text string, history []Turn) Intent {
	text = strings.TrimSpace(text)
	s := c.Scan(text)
	length := utf8.RuneCountInString(text)

	if s[SignalSecurity] > 0 {
		return Security
	}

	command := s[SignalCommand] > 0
	build := s[SignalBuild]
	switch {
	case command && build > 0:
		return Build
	case build > 0 && (build >= buildMatchThreshold || length >= buildLengthThreshold):
		return Build
	case command:
		return Command
	}

	if build == 0 {
		if s[SignalDiscussion] > 0 {
			return Discussion
		}
		if s[SignalQuestion] > 0 {
			return Inquiry
		}
		if n := len(history); n > 0 && history[n-1].Intent == Discussion && length < continuationLengthThreshold {
			return Discussion
		}
	}

	if build > 0 {
		return Build
	}
	if length < shortInputThreshold && !command {
		return Discussion
	}
	return Inquiry
}
