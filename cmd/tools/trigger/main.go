package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Kicks a price refresh on a running cotador instance. Useful from cron.
func main() {
	base := strings.TrimSpace(os.Getenv("COTADOR_URL"))
	if base == "" {
		base = "http://localhost:8080"
	}

	url := strings.TrimRight(base, "/") + "/atualizar_precos/"
	req, err := http.NewRequest("POST", url, strings.NewReader("{}"))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(os.Getenv("COTADOR_API_KEY")); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Response Status: %s\n", resp.Status)
	fmt.Println(string(body))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
