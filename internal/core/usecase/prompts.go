package usecase

import (
	"fmt"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

const summarizerSystemPrompt = "You are a helpful assistant that creates clear, concise summaries."

const simpleSummaryTemplate = `Please provide a comprehensive summary of the following document.
Include the main points, key findings, and important conclusions.
Make the summary clear, concise, and well-organized.

Document:
%s

Summary:`

const sectionSummaryTemplate = `Summarize the following section of a document, capturing the key points and important details:

%s

Section Summary:`

const combineSummaryTemplate = `You are given summaries of different sections of a document.
Please combine these into a comprehensive, well-organized final summary.
Include the main points, key findings, and important conclusions.
Make sure the summary flows naturally, is easy to read and does not repeat itself.

Section Summaries:
%s

Final Summary:`

func simpleSummaryPrompt(text string) domain.Prompt {
	return renderPrompt(simpleSummaryTemplate, text)
}

func sectionSummaryPrompt(text string) domain.Prompt {
	return renderPrompt(sectionSummaryTemplate, text)
}

func combineSummaryPrompt(text string) domain.Prompt {
	return renderPrompt(combineSummaryTemplate, text)
}

func renderPrompt(template, text string) domain.Prompt {
	return domain.Prompt{
		System: summarizerSystemPrompt,
		User:   fmt.Sprintf(template, text),
	}
}
