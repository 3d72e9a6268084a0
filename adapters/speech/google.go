package speech

import (
	"context"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

// GoogleSpeech implements domain.Recognizer on Google Cloud streaming
// recognition. Audio arrives in chunks through Feed; finalized transcripts
// go back through the callback given to Start.
type GoogleSpeech struct {
	client *speech.Client

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating Google speech client: %w", err)
	}
	return &GoogleSpeech{client: client}, nil
}

func (g *GoogleSpeech) Supported() bool {
	return g != nil && g.client != nil
}

// Start opens a streaming recognition session and begins draining results.
// Only one session runs at a time.
func (g *GoogleSpeech) Start(ctx context.Context, onTranscript func(text string)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream != nil {
		return fmt.Errorf("recognizer already listening")
	}

	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("creating streaming client: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: 16000,
					LanguageCode:    "en-US",
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending streaming config: %w", err)
	}

	g.stream = stream
	go g.drain(ctx, stream, onTranscript)
	return nil
}

// drain forwards finalized transcripts until the stream ends.
func (g *GoogleSpeech) drain(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, onTranscript func(string)) {
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.WithCtx(ctx).Warn("streaming recognize ended", zap.Error(err))
			return
		}
		for _, result := range resp.Results {
			if !result.IsFinal || len(result.Alternatives) == 0 {
				continue
			}
			onTranscript(result.Alternatives[0].Transcript)
		}
	}
}

// Feed sends one audio chunk into the open stream.
func (g *GoogleSpeech) Feed(chunk []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream == nil {
		return fmt.Errorf("recognizer is not listening")
	}
	return g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	})
}

// Stop half-closes the stream; pending results still drain.
func (g *GoogleSpeech) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream == nil {
		return nil
	}
	err := g.stream.CloseSend()
	g.stream = nil
	if err != nil {
		return fmt.Errorf("closing streaming client: %w", err)
	}
	return nil
}
