package diagnose

import (
	"context"
	"fmt"

	"willow-server-go/src/core/image"
	"willow-server-go/src/core/providers"
)

// ChatModel 文本生成模型，每个阶段一次请求一次响应
type ChatModel interface {
	Chat(ctx context.Context, messages []providers.Message) (string, error)
}

// VisionModel 多模态模型，把图片转成文字描述
type VisionModel interface {
	ResponseWithImage(ctx context.Context, systemPrompt string, imageData image.ImageData, text string) (string, error)
}

// 各阶段的固定角色提示词
const (
	describerPrompt = "You are an assistant that describes the key visual characteristics of a plant from an image, focusing on its health and any visible issues. Be concise and objective."

	validatorPrompt = `You are a content safety classifier for a plant diagnosis service. Given a description of an uploaded image, decide whether it shows a plant and whether the plant is legal to process.

Only the following restricted species may be marked illegal: cannabis (marijuana), opium poppy, peyote or other hallucinogenic cacti, khat, and coca. All other plants, including food crops, ornamentals and houseplants, are legal. If the species is ambiguous or cannot be confidently identified as one of the restricted species, mark it legal.

Respond with ONLY a JSON object in this exact format:
{"is_plant_image": true/false, "is_legal_plant": true/false, "plant_type": "name of the plant or empty string", "notes": "brief explanation", "allow_processing": true/false}

allow_processing must be true only when is_plant_image and is_legal_plant are both true.`

	identifierPrompt = `You are an assistant that identifies a plant and its condition from a description. If the description suggests the plant appears healthy, use "healthy" as the condition. Respond with ONLY a JSON object in this exact format:
{"plant_name": "name of the plant", "condition": "name of the disease or condition"}`

	synthesizerPrompt = "You are a plant disease expert. Your primary goal is to provide a detailed diagnosis based on the provided image description and context. You will ONLY provide the diagnosis text, without any additional formatting or action plan. Communicate using clear, concise Markdown."

	plannerPrompt = "You are a plant care expert. Given a diagnosis and additional context, your goal is to provide a clear, step-by-step action plan to help the plant recover or thrive. Communicate using clear, concise Markdown."

	reviewerPrompt = "You are a quality control specialist. Your job is to review a diagnosis and action plan for clarity, accuracy, and tone. You will then format the final, user-facing response as clear, readable Markdown text. Always state the plant name and condition in the response."

	extractorPrompt = `You are a data formatting specialist. Your task is to take a plant diagnosis provided as text and convert it into a structured JSON object. The JSON must adhere to the following format:

` + "```json" + `
{
  "plant_name": "...",
  "condition": "...",
  "detail_diagnosis": "...",
  "action_plan": [
    {"id": 1, "action": "..."},
    {"id": 2, "action": "..."}
  ]
}
` + "```" + `

Ensure that each action step has a unique 'id' starting from 1. If there's only one action, it should still be in an array. If no action plan is found, provide an empty array for 'action_plan'.`
)

func describeImage(ctx context.Context, vision VisionModel, img image.ImageData) (string, error) {
	return vision.ResponseWithImage(ctx, describerPrompt, img, "Describe this plant image.")
}

func validateContent(ctx context.Context, llm ChatModel, description string) (string, error) {
	return llm.Chat(ctx, []providers.Message{
		{Role: "system", Content: validatorPrompt},
		{Role: "user", Content: fmt.Sprintf("Classify the following image description: %s", description)},
	})
}

func identifyPlant(ctx context.Context, llm ChatModel, description string) (string, error) {
	return llm.Chat(ctx, []providers.Message{
		{Role: "system", Content: identifierPrompt},
		{Role: "user", Content: fmt.Sprintf("What plant and condition are described here: %s", description)},
	})
}

func synthesizeDiagnosis(ctx context.Context, llm ChatModel, description, retrievalContext string) (string, error) {
	return llm.Chat(ctx, []providers.Message{
		{Role: "system", Content: synthesizerPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Here is a description of a plant: %s. Here is some context about a potential issue: %s. Please provide a detailed diagnosis. Do NOT provide an exact action plan. Communicate in Markdown.",
			description, retrievalContext)},
	})
}

func planActions(ctx context.Context, llm ChatModel, diagnosis, retrievalContext string, healthy bool) (string, error) {
	instruction := "Please provide a step-by-step action plan to help the plant."
	if healthy {
		instruction = "The plant is healthy, so please provide general care tips instead of remediation steps."
	}
	return llm.Chat(ctx, []providers.Message{
		{Role: "system", Content: plannerPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Given the following diagnosis: %s. And this context: %s. %s Communicate in Markdown.",
			diagnosis, retrievalContext, instruction)},
	})
}

func reviewNarrative(ctx context.Context, llm ChatModel, info PlantInfo, diagnosis, plan string) (string, error) {
	return llm.Chat(ctx, []providers.Message{
		{Role: "system", Content: reviewerPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Please review the following diagnosis and action plan for clarity, accuracy, and tone. Plant: %s\nCondition: %s\nDiagnosis: %s\nAction Plan: %s",
			info.PlantName, info.Condition, diagnosis, plan)},
	})
}

func extractRecord(ctx context.Context, llm ChatModel, info PlantInfo, narrative string) (string, error) {
	return llm.Chat(ctx, []providers.Message{
		{Role: "system", Content: extractorPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Plant: %s\nCondition: %s\nFormat the following text into JSON: %s",
			info.PlantName, info.Condition, narrative)},
	})
}
