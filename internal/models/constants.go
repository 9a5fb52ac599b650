package models

const (
	ContextSeparator = "\n\n"
	TempFilesDir     = "temp_files"
	DatabaseDir      = "database"
)

var (
	// RAGPromptTemplate takes the context block and the question.
	RAGPromptTemplate = `Context: %s

Question: %s

Answer based on the context above:`

	// AudioQuestionTemplate is used when the user asks about the audio itself.
	AudioQuestionTemplate = "Audio transcription: %s\n\nUser question: %s"

	// AudioContextTemplate is used when the audio is context for the question.
	AudioContextTemplate = "Based on this audio transcription: %s\n\nAnswer this question: %s"
)
