// Package prompts holds every line of text the proctor speaks or feeds to the
// LLM. Keeping the wording in one place makes the spoken protocol reviewable
// without reading the controller.
package prompts

import (
	"fmt"
	"strings"

	"github.com/coral-ai/proctor/pkg/exam"
)

// Fixed spoken lines.
const (
	// Closing is spoken after the last question's answer has been committed.
	Closing = "Thank you for completing the exam. This concludes our session. Good luck with your results!"

	// Reminder is spoken when no exam data has arrived 15 seconds into the
	// session.
	Reminder = "Waiting for exam data. Please ensure it has been sent to the room."

	// InvalidData is spoken when a question is due but the received exam
	// payload could not be used.
	InvalidData = "Exam data was invalid. Please try again."

	// LoadFailure is spoken when the exam lookup fails, regardless of cause.
	LoadFailure = "Sorry, I couldn't load the exam. Please try again."

	// Persona is the LLM system prompt used before any exam is loaded.
	Persona = "You are an oral exam instructor. Your role is to: " +
		"1. Ask questions from the exam one at a time " +
		"2. Listen to the student's response, dig deeper once if needed " +
		"3. Move to the next question after receiving the response " +
		"4. Do not provide answers or hints " +
		"5. End the exam with a completion message " +
		"Do not ask questions until you receive the exam data."
)

// Welcome builds the spoken greeting for a freshly loaded exam.
func Welcome(e *exam.Exam) string {
	return fmt.Sprintf(
		"Welcome to the Coral AI Exam Platform! I'm your AI instructor. "+
			"We'll now begin the %s exam, which contains %d questions. "+
			"The exam duration is %d minutes and has a %s difficulty level. "+
			"Let's start with the first question.",
		e.Name, len(e.Questions), e.Duration, e.Difficulty,
	)
}

// Question formats the nth question (zero-based index) for speech.
func Question(index int, text string) string {
	return fmt.Sprintf("Question %d: %s", index+1, text)
}

// Instructions builds the system prompt for the LLM layer: a neutral proctor
// persona with the exam's questions inlined so remarks stay on topic.
func Instructions(e *exam.Exam) string {
	var b strings.Builder
	b.WriteString("You are an AI exam proctor. Your role is to:\n")
	b.WriteString("1. Present questions from this exam exactly as written:\n")
	for i, q := range e.Questions {
		fmt.Fprintf(&b, "   %d. %s\n", i+1, q.Text)
	}
	b.WriteString("2. Wait for student responses\n")
	b.WriteString("3. Maintain neutral and professional communication\n")
	b.WriteString("4. Do not provide answers or hints")
	return b.String()
}
