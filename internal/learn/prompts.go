package learn

import "strings"

// Prompt templates. {transcript} is replaced verbatim.

const summaryPrompt = `You are an expert educational content analyzer. Analyze the following YouTube video transcript and provide a comprehensive summary.

Transcript:
{transcript}

Please provide:
1. A brief overview (2-3 sentences)
2. Main topics covered (bullet points)
3. Detailed summary organized by sections
4. Key takeaways

Format your response in a clear, structured way suitable for students.`

const keyPointsPrompt = `You are an expert educator. Analyze the following YouTube video transcript and extract the most important learning points.

Transcript:
{transcript}

Extract 8-12 core learning points that students MUST remember. These should be:
- Factual and specific
- Exam-oriented
- Clear and concise
- Cover all major concepts

Format each point as a numbered list with brief explanations where needed.`

const quizPrompt = `You are an expert quiz creator. Based on the following YouTube video transcript, create EXACTLY 10 multiple-choice questions.

Transcript:
{transcript}

Requirements:
- Create EXACTLY 10 questions (no more, no less)
- Questions should test understanding of key concepts from the video
- Each question must have 4 options (A, B, C, D)
- Only ONE correct answer per question
- Include a mix of difficulty levels (easy, medium, hard)
- Questions should be clear and unambiguous

Format your response as a JSON array with this structure:
[
  {
    "question": "Question text here?",
    "options": {
      "A": "Option A text",
      "B": "Option B text",
      "C": "Option C text",
      "D": "Option D text"
    },
    "correct_answer": "A",
    "explanation": "Brief explanation of why this is correct"
  }
]

Return ONLY the JSON array, nothing else.`

func buildPrompt(tmpl, transcript string) string {
	return strings.Replace(tmpl, "{transcript}", transcript, 1)
}
