package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arzzra/offer_answer/pkg/encryption"
	"github.com/arzzra/offer_answer/pkg/media_sdp"
	"github.com/arzzra/offer_answer/pkg/offer_answer"
	"github.com/arzzra/offer_answer/pkg/payload"
)

func main() {
	var (
		mode       = flag.String("mode", "answer", "Mode: offer, answer")
		configPath = flag.String("config", "", "YAML файл конфигурации движка")
		offerPath  = flag.String("offer", "-", "Файл с SDP offer для режима answer, - для stdin")
		address    = flag.String("addr", "127.0.0.1", "Локальный адрес медиа")
		audioPort  = flag.Int("audio-port", 5004, "Порт аудио, 0 - без аудио")
		videoPort  = flag.Int("video-port", 0, "Порт видео, 0 - без видео")
		disable    = flag.String("disable", "", "Выключить кодеки по glob шаблону, через запятую (например speex/*,H26*)")
		srtp       = flag.String("srtp", "", "Шифрование: srtp, dtls, zrtp или пусто")
		fp         = flag.String("fingerprint", "", "Локальный отпечаток DTLS (\"sha-256 AB:CD:...\")")
		bundle     = flag.Bool("bundle", false, "Предлагать и принимать bundle")
		debug      = flag.Bool("debug", false, "Enable debug mode")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	engine, err := newEngine(*configPath, logger)
	if err != nil {
		log.Fatalf("Ошибка создания движка: %v", err)
	}
	history, err := engine.NewHistory()
	if err != nil {
		log.Fatalf("Ошибка создания истории: %v", err)
	}

	store := payload.NewCapabilityStore()
	store.SetLogger(logger)
	for _, pattern := range strings.Split(*disable, ",") {
		if pattern = strings.TrimSpace(pattern); pattern == "" {
			continue
		}
		for _, t := range []payload.StreamType{payload.StreamAudio, payload.StreamVideo} {
			if _, err := store.EnableMatching(t, pattern, false); err != nil {
				log.Fatalf("Некорректный шаблон %q: %v", pattern, err)
			}
		}
	}

	intent, err := parseIntent(*srtp)
	if err != nil {
		log.Fatalf("%v", err)
	}
	var dtls *encryption.DTLSParams
	if intent.Mode == encryption.DtlsSrtp {
		if err := media_sdp.ValidateFingerprint(*fp); err != nil {
			log.Fatalf("Для DTLS нужен корректный -fingerprint: %v", err)
		}
		dtls = &encryption.DTLSParams{Role: encryption.RoleUnset, Fingerprint: *fp}
	}

	capability := &offer_answer.SessionCapability{BundleEnabled: *bundle, AcceptBundles: *bundle}
	if *audioPort > 0 {
		capability.Streams = append(capability.Streams, newStream(payload.StreamAudio, *address, *audioPort, intent, dtls, *bundle))
	}
	if *videoPort > 0 {
		capability.Streams = append(capability.Streams, newStream(payload.StreamVideo, *address, *videoPort, intent, dtls, *bundle))
	}

	cfg := media_sdp.DefaultConfig()
	cfg.SessionID = "negotiate-cli"
	cfg.Address = *address
	cfg.Capability = capability
	cfg.Store = store
	cfg.Engine = engine
	cfg.History = history
	cfg.Logger = logger

	switch *mode {
	case "offer":
		err = runOffer(cfg, os.Stdout)
	case "answer":
		err = runAnswer(cfg, *offerPath, os.Stdout)
	default:
		fmt.Printf("Неизвестный режим: %s\n", *mode)
		fmt.Println("Доступные режимы: offer, answer")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Ошибка согласования: %v", err)
	}
}

// newEngine создает движок из YAML файла или с настройками по умолчанию.
// Метрики регистрируются в собственном реестре процесса.
func newEngine(path string, logger *slog.Logger) (*offer_answer.Engine, error) {
	cfg := offer_answer.DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if cfg, err = offer_answer.LoadConfig(f); err != nil {
			return nil, err
		}
	}
	cfg.Logger = logger
	cfg.Registerer = prometheus.NewRegistry()
	return offer_answer.NewEngine(cfg)
}

func parseIntent(s string) (encryption.Intent, error) {
	mode, ok := encryption.ParseMode(s)
	if !ok {
		return encryption.Intent{}, fmt.Errorf("неизвестный режим шифрования %q", s)
	}
	intent := encryption.Intent{Mode: mode}
	if mode == encryption.SdesSrtp {
		intent.Suites = []encryption.CryptoSuite{{
			Tag:       1,
			Suite:     "AES_CM_128_HMAC_SHA1_80",
			KeyParams: "inline:WVNfX19zZW1jdGwgKCkgewkyMjA7fQp9CnVubGVz",
		}}
	}
	return intent, nil
}

func newStream(t payload.StreamType, addr string, port int, intent encryption.Intent, dtls *encryption.DTLSParams, bundle bool) *offer_answer.StreamCapability {
	return &offer_answer.StreamCapability{
		Type:           t,
		Direction:      offer_answer.SendRecv,
		Encryption:     intent,
		DTLS:           dtls,
		BundleEligible: bundle,
		RTCPMux:        bundle,
		Transport: offer_answer.Transport{
			RTPAddr:  addr,
			RTPPort:  port,
			RTCPAddr: addr,
			RTCPPort: port + 1,
		},
	}
}

// runOffer печатает offer по локальным возможностям
func runOffer(cfg media_sdp.Config, out io.Writer) error {
	builder, err := media_sdp.NewSDPMediaBuilder(cfg)
	if err != nil {
		return err
	}
	offer, err := builder.CreateOffer()
	if err != nil {
		return err
	}
	raw, err := offer.Marshal()
	if err != nil {
		return err
	}
	_, err = out.Write(raw)
	return err
}

// runAnswer читает offer и печатает answer. Answer печатается и тогда,
// когда все потоки отклонены.
func runAnswer(cfg media_sdp.Config, offerPath string, out io.Writer) error {
	var (
		raw []byte
		err error
	)
	if offerPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(offerPath)
	}
	if err != nil {
		return err
	}

	offer, err := media_sdp.UnmarshalSessionDescription(raw)
	if err != nil {
		return err
	}

	handler, err := media_sdp.NewSDPMediaHandler(cfg)
	if err != nil {
		return err
	}
	negotiateErr := handler.ProcessOffer(offer)
	if handler.Result() == nil {
		return negotiateErr
	}

	answer, err := handler.CreateAnswer()
	if err != nil {
		return err
	}
	body, err := answer.Marshal()
	if err != nil {
		return err
	}
	if _, err := out.Write(body); err != nil {
		return err
	}
	return negotiateErr
}
