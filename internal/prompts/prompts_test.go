package prompts

import (
	"strings"
	"testing"

	"github.com/coral-ai/proctor/pkg/exam"
)

func sampleExam() *exam.Exam {
	return &exam.Exam{
		ID:   "507f1f77bcf86cd799439011",
		Name: "Biology Midterm",
		Questions: []exam.Question{
			{Text: "Define osmosis."},
			{Text: "Explain photosynthesis."},
		},
		Duration:   45,
		Difficulty: "Hard",
	}
}

func TestWelcome(t *testing.T) {
	got := Welcome(sampleExam())

	want := "Welcome to the Coral AI Exam Platform! I'm your AI instructor. " +
		"We'll now begin the Biology Midterm exam, which contains 2 questions. " +
		"The exam duration is 45 minutes and has a Hard difficulty level. " +
		"Let's start with the first question."
	if got != want {
		t.Errorf("Welcome() = %q, want %q", got, want)
	}
}

func TestQuestion(t *testing.T) {
	got := Question(0, "Define osmosis.")
	if got != "Question 1: Define osmosis." {
		t.Errorf("Question(0) = %q", got)
	}
	got = Question(9, "Last one.")
	if got != "Question 10: Last one." {
		t.Errorf("Question(9) = %q", got)
	}
}

func TestInstructionsListsQuestions(t *testing.T) {
	got := Instructions(sampleExam())

	if !strings.HasPrefix(got, "You are an AI exam proctor.") {
		t.Errorf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "1. Define osmosis.") {
		t.Error("missing first question")
	}
	if !strings.Contains(got, "2. Explain photosynthesis.") {
		t.Error("missing second question")
	}
	if !strings.Contains(got, "Do not provide answers or hints") {
		t.Error("missing no-hints rule")
	}
}
