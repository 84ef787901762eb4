// Package chunk splits extracted documents into retrieval units sized
// by token count (cl100k_base, the embedding models' tokenizer).
package chunk

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Offline loader: the BPE tables ship with the binary, no network fetch
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	encInstance *tiktoken.Tiktoken
	encOnce     sync.Once
	encErr      error
)

// encoder returns the shared cl100k_base encoding.
// Loading the tables is expensive, so it happens once per process.
func encoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		encInstance, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encInstance, encErr
}

// CountTokens returns the cl100k_base token count of text.
// Returns 0 on empty input or encoder failure.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc, err := encoder()
	if err != nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}
