package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	bud "github.com/budecosystem/bud-go"
)

var chatFlags struct {
	model       string
	system      string
	noStream    bool
	temperature float64
	maxTokens   int
}

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Send a chat completion request",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatFlags.model, "model", "m", "", "model to use (default $BUD_MODEL or config file)")
	chatCmd.Flags().StringVar(&chatFlags.system, "system", "", "system prompt")
	chatCmd.Flags().BoolVar(&chatFlags.noStream, "no-stream", false, "wait for the full response instead of streaming")
	chatCmd.Flags().Float64VarP(&chatFlags.temperature, "temperature", "t", -1, "sampling temperature")
	chatCmd.Flags().IntVar(&chatFlags.maxTokens, "max-tokens", 0, "maximum tokens to generate")
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	model, err := defaultModel(chatFlags.model)
	if err != nil {
		return err
	}

	var messages []bud.ChatMessage
	if chatFlags.system != "" {
		messages = append(messages, bud.ChatMessage{Role: "system", Content: chatFlags.system})
	}
	messages = append(messages, bud.ChatMessage{Role: "user", Content: strings.Join(args, " ")})

	req := &bud.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: chatFlags.maxTokens,
	}
	if chatFlags.temperature >= 0 {
		req.Temperature = &chatFlags.temperature
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if chatFlags.noStream {
		resp, err := client.Chat.Completions.Create(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("response contained no choices")
		}
		fmt.Fprintln(out, resp.Choices[0].Message.Content)
		return nil
	}

	stream, err := client.Chat.Completions.CreateStream(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		for _, choice := range chunk.Choices {
			if choice.Index == 0 {
				fmt.Fprint(out, choice.Delta.Content)
			}
		}
	}
	fmt.Fprintln(out)
	return nil
}
