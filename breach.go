package authcore

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const breachPrefixLen = 5

// breachScreener queries the HIBP range API using k-anonymity: only the
// first five hex characters of the SHA-1 digest ever leave the process.
type breachScreener struct {
	config BreachConfig
	client *http.Client
}

func newBreachScreener(cfg BreachConfig, client *http.Client) *breachScreener {
	if !cfg.Enabled {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &breachScreener{
		config: cfg,
		client: client,
	}
}

// Check returns the breach occurrence count for the password, or an error
// when the range API could not be consulted. Callers decide the fail-open
// policy; Check itself never swallows errors.
func (b *breachScreener) Check(ctx context.Context, password string) (int, error) {
	if b == nil {
		return 0, nil
	}

	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix := digest[:breachPrefixLen]
	suffix := digest[breachPrefixLen:]

	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.config.Endpoint+prefix, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("breach range api status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		if !strings.EqualFold(line[:colon], suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(line[colon+1:]))
		if err != nil {
			return 0, errors.New("breach range api malformed count")
		}
		return count, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	return 0, nil
}
