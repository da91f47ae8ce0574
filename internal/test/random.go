package test

import (
	"fmt"
	"math/rand/v2"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

const loginAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomLogin returns a lowercase login of n characters, at least one.
func RandomLogin(n int) string {
	if n <= 0 {
		n = 1
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = loginAlphabet[rand.IntN(len(loginAlphabet))]
	}
	return string(buf)
}

// RandomAssetRequests builds n requests with unique asset IDs on site.
func RandomAssetRequests(site string, n int) []model.AssetRequest {
	offset := rand.IntN(1_000_000)
	items := make([]model.AssetRequest, n)
	for i := range items {
		items[i] = model.AssetRequest{Site: site, AssetID: fmt.Sprintf("asset-%d", offset+i)}
	}
	return items
}
