package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/subosito/gotenv"

	"github.com/luminanexus/chavruta/adapters/gateway"
	"github.com/luminanexus/chavruta/adapters/hasher"
	chavrutahttp "github.com/luminanexus/chavruta/adapters/http"
	"github.com/luminanexus/chavruta/adapters/llm"
	"github.com/luminanexus/chavruta/adapters/message_broker"
	"github.com/luminanexus/chavruta/adapters/speech"
	"github.com/luminanexus/chavruta/adapters/tts"
	"github.com/luminanexus/chavruta/adapters/websocket"
	"github.com/luminanexus/chavruta/domain"
)

func main() {
	gotenv.Load()
	ctx := context.Background()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	completer := buildCompleter(ctx)
	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	var synthesizer domain.Synthesizer
	if googleTTS, err := tts.NewGoogleTTS(ctx); err != nil {
		log.Printf("text-to-speech unavailable: %v", err)
		synthesizer = tts.NewNoop()
	} else {
		synthesizer = googleTTS
	}

	newRecognizer := func() domain.Recognizer {
		googleSpeech, err := speech.NewGoogleSpeech(context.Background())
		if err != nil {
			log.Printf("speech-to-text unavailable: %v", err)
			return speech.NewNoop()
		}
		return googleSpeech
	}

	gatewayURL := os.Getenv("CHAVRUTA_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = fmt.Sprintf("http://localhost:%s/api/chavruta", port)
	}

	wsServer := websocket.NewServer(websocket.Config{
		Gateway:       gateway.NewClient(gatewayURL),
		Broker:        broker,
		Synthesizer:   synthesizer,
		NewRecognizer: newRecognizer,
		HistoryCap:    domain.DefaultHistoryCap,
		Mode:          os.Getenv("CHAVRUTA_MODE"),
		VoiceReplies:  os.Getenv("CHAVRUTA_VOICE") == "true",
	})
	go wsServer.RunWebsocketHub()
	chatHandler := chavrutahttp.NewChatHandler(completer, wsServer)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("1MB"))
	// Origin can later be locked to https://luminanexus.org.
	e.Use(chavrutahttp.CORS)

	// Any, not POST: the handler owns the 405 mapping for misrouted methods.
	e.Any("/api/chavruta", chatHandler.Chat)
	e.GET("/api/v1/health", chatHandler.Health)
	e.GET("/ws", wsServer.Handler)

	log.Println("Starting server on :" + port)
	log.Println("Available endpoints:")
	log.Println("  POST /api/chavruta    - Chat completion")
	log.Println("  GET  /api/v1/health   - Health check")
	log.Println("  GET  /ws              - Transcript surface")
	log.Fatal(e.Start(":" + port))
}

// buildCompleter picks the upstream provider. OpenAI is the default;
// CHAVRUTA_UPSTREAM=gemini selects the genai adapter. A missing OpenAI
// credential is not fatal here: it maps to a 500 per request.
func buildCompleter(ctx context.Context) domain.Completer {
	if os.Getenv("CHAVRUTA_UPSTREAM") == "gemini" {
		gemini, err := llm.NewGeminiClient(ctx)
		if err == nil {
			return gemini
		}
		log.Printf("gemini upstream unavailable, falling back to openai: %v", err)
	}
	return llm.NewOpenAIClient(
		os.Getenv("OPENAI_API_KEY"),
		os.Getenv("CHAVRUTA_MODEL"),
		"",
		hasher.New(),
	)
}
