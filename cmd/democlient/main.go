// Command democlient is a manual/integration testing tool: it captures the
// microphone, encodes it as Opus-in-WebM the way a browser's MediaRecorder
// would, and drives either the solo or room wire endpoint over a websocket,
// printing every received JSON message and playing back synthesized audio.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coder/websocket"
	"github.com/gen2brain/malgo"
	"layeh.com/gopus"

	"github.com/lokutor-ai/babelroom/pkg/echosuppress"
)

const (
	sampleRate = 48000
	channels   = 1
	frameMS    = 20
	frameSize  = sampleRate * frameMS / 1000 // 960 samples/channel
)

func main() {
	server := flag.String("server", "ws://localhost:8080", "babelroom server base URL")
	mode := flag.String("mode", "solo", "solo | create | join")
	name := flag.String("name", "demo", "participant display name (room modes)")
	roomID := flag.String("room", "", "room code to join (mode=join)")
	myLang := flag.String("my-lang", "en", "my language, en|es|pt (mode=create)")
	partnerLang := flag.String("partner-lang", "es", "partner language, en|es|pt (mode=create)")
	lang := flag.String("lang", "auto", "source language, auto|en|es|pt (mode=solo)")
	targetLang := flag.String("target-lang", "none", "target language, none|en|es|pt (mode=solo)")
	tts := flag.Bool("tts", true, "request synthesized audio back (mode=solo)")
	flag.Parse()

	wsURL, err := buildURL(*server, *mode, *name, *roomID, *myLang, *partnerLang, *lang, *targetLang, *tts)
	if err != nil {
		log.Fatalf("democlient: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Fatalf("democlient: dial %s: %v", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		log.Fatalf("democlient: create opus encoder: %v", err)
	}

	mux := &ebmlMux{}
	var muxOnce sync.Once

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	var playbackMu sync.Mutex
	var playbackBytes []byte

	// Synthesized replies arrive over the same duplex device the mic is
	// captured from, so whatever the speaker plays can leak back into the
	// mic; suppress that before it gets re-encoded and echoed back to the
	// server.
	echo := echosuppress.NewEchoSuppressor()

	var pending []byte // int16-aligned leftover input bytes shorter than one frame
	var timecodeMS uint16

	if *mode != "solo" {
		// Room mode is marker-gated: begin the utterance stream once, for
		// the lifetime of this demo connection.
		sendBinary(conn, ctx, []byte("STRT"))
	}

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			clean := echo.RemoveEchoRealtime(pInput)
			pending = append(pending, clean...)
			frameBytes := frameSize * 2
			for len(pending) >= frameBytes {
				chunk := pending[:frameBytes]
				pending = pending[frameBytes:]

				pcm := bytesToInt16s(chunk)
				packet, err := enc.Encode(pcm, frameSize, frameBytes)
				if err != nil {
					log.Printf("democlient: opus encode: %v", err)
					continue
				}

				var out []byte
				muxOnce.Do(func() {
					out = mux.header(1)
				})
				out = append(out, mux.frame(packet, timecodeMS)...)
				timecodeMS += frameMS

				sendBinary(conn, ctx, out)
			}
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
			playbackMu.Unlock()
			if n > 0 {
				echo.RecordPlayedAudio(pOutput[:n])
			}
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			msgType, payload, err := conn.Read(ctx)
			if err != nil {
				return
			}
			switch msgType {
			case websocket.MessageText:
				var m map[string]interface{}
				if err := json.Unmarshal(payload, &m); err != nil {
					continue
				}
				pretty, _ := json.MarshalIndent(m, "", "  ")
				fmt.Printf("\n[message]\n%s\n", pretty)
			case websocket.MessageBinary:
				pcm := stripWavHeader(payload)
				playbackMu.Lock()
				playbackBytes = append(playbackBytes, pcm...)
				playbackMu.Unlock()
			}
		}
	}()

	fmt.Printf("democlient connected: %s\nPress Ctrl+C to exit\n", wsURL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\ndemoclient: shutting down...")
}

func buildURL(server, mode, name, roomID, myLang, partnerLang, lang, targetLang string, tts bool) (string, error) {
	base, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("bad server url: %w", err)
	}
	q := url.Values{}
	switch mode {
	case "solo":
		base.Path = "/ws/audio"
		q.Set("lang", lang)
		q.Set("target_lang", targetLang)
		if tts {
			q.Set("tts", "true")
		}
	case "create":
		base.Path = "/ws/session"
		q.Set("name", name)
		q.Set("my_lang", myLang)
		q.Set("partner_lang", partnerLang)
	case "join":
		if roomID == "" {
			return "", fmt.Errorf("mode=join requires -room")
		}
		base.Path = "/ws/session"
		q.Set("name", name)
		q.Set("room_id", roomID)
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func sendBinary(conn *websocket.Conn, ctx context.Context, payload []byte) {
	if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		log.Printf("democlient: write: %v", err)
	}
}

// stripWavHeader drops the 44-byte canonical RIFF/WAVE/fmt/data header that
// pkg/audio.NewWavBuffer always writes, returning the raw PCM16 payload.
func stripWavHeader(wav []byte) []byte {
	const headerLen = 44
	if len(wav) <= headerLen {
		return nil
	}
	return wav[headerLen:]
}

func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
