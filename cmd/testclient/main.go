package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	serverAddr = flag.String("addr", "http://localhost:8000", "nllbgate HTTP base URL")
	sourceLang = flag.String("source", "en", "Source language tag (e.g., en, fr)")
	targetLang = flag.String("target", "fr", "Target language tag (e.g., en, fr)")
	textFile   = flag.String("file", "", "Path to text file to translate")
	text       = flag.String("text", "", "Text to translate (if file not provided)")
	loadModels = flag.Bool("load", true, "Call POST /load_models before translating")
	timeout    = flag.Duration("timeout", 10*time.Minute, "Overall timeout, including the model load")
)

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	Status         string `json:"status"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Detail         string `json:"detail"`
}

type loadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Model   string `json:"model"`
	Detail  string `json:"detail"`
}

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	// Read text to translate
	var textToTranslate string
	if *textFile != "" {
		data, err := os.ReadFile(*textFile)
		if err != nil {
			logger.WithError(err).Fatalf("Failed to read file: %s", *textFile)
		}
		textToTranslate = string(data)
	} else if *text != "" {
		textToTranslate = *text
	} else {
		logger.Fatal("Either -file or -text must be provided")
	}

	if strings.TrimSpace(textToTranslate) == "" {
		logger.Fatal("Text to translate is empty")
	}

	baseURL := strings.TrimRight(*serverAddr, "/")
	client := &http.Client{}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger.WithFields(logrus.Fields{
		"server":      baseURL,
		"source_lang": *sourceLang,
		"target_lang": *targetLang,
		"text_length": len(textToTranslate),
	}).Info("Connecting to nllbgate server...")

	if *loadModels {
		logger.Info("Loading models...")
		var loadResp loadResponse
		code, err := postJSON(ctx, client, baseURL+"/load_models", nil, &loadResp)
		if err != nil {
			logger.WithError(err).Fatal("Failed to call /load_models")
		}
		if code >= http.StatusBadRequest {
			logger.WithFields(logrus.Fields{
				"status_code": code,
				"detail":      loadResp.Detail,
			}).Fatal("Model load failed")
		}
		logger.WithFields(logrus.Fields{
			"status": loadResp.Status,
			"model":  loadResp.Model,
		}).Info(loadResp.Message)
	}

	logger.Info("Translating text...")
	startTime := time.Now()

	var resp translateResponse
	code, err := postJSON(ctx, client, baseURL+"/translate", translateRequest{
		Text:       textToTranslate,
		SourceLang: *sourceLang,
		TargetLang: *targetLang,
	}, &resp)
	if err != nil {
		logger.WithError(err).Fatal("Translation failed")
	}
	duration := time.Since(startTime)

	if code != http.StatusOK {
		logger.WithFields(logrus.Fields{
			"status_code": code,
			"error":       resp.Detail,
		}).Fatal("Translation was not successful")
	}

	// Output results
	separator := strings.Repeat("=", 80)
	dashLine := strings.Repeat("-", 80)

	fmt.Println()
	fmt.Println(separator)
	fmt.Println("TRANSLATION RESULTS")
	fmt.Println(separator)
	fmt.Printf("\nSource Language: %s (%s)\n", resp.SourceLanguage, *sourceLang)
	fmt.Printf("Target Language: %s (%s)\n", resp.TargetLanguage, *targetLang)
	fmt.Printf("Translation Time: %.2f seconds\n", duration.Seconds())
	fmt.Println()
	fmt.Println(dashLine)
	fmt.Println("ORIGINAL TEXT:")
	fmt.Println(dashLine)
	fmt.Println(resp.OriginalText)
	fmt.Println()
	fmt.Println(dashLine)
	fmt.Println("TRANSLATED TEXT:")
	fmt.Println(dashLine)
	fmt.Println(resp.TranslatedText)
	fmt.Println()
	fmt.Println(separator)

	logger.WithFields(logrus.Fields{
		"duration_seconds": duration.Seconds(),
		"status":           resp.Status,
	}).Info("Translation completed successfully")
}

// postJSON posts body (or nothing when nil) and decodes the JSON reply into out.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
