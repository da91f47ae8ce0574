package dto

// BatchItemRequest is one requested asset.
type BatchItemRequest struct {
	Site      string `json:"site"`
	AssetID   string `json:"asset_id"`
	SourceURL string `json:"source_url,omitempty"`
}

// BatchRequest describes batch submission payload.
type BatchRequest struct {
	Items []BatchItemRequest `json:"items"`
}

// ItemResponse reports the outcome of one item.
type ItemResponse struct {
	Position    int    `json:"position"`
	Site        string `json:"site"`
	AssetID     string `json:"asset_id"`
	Outcome     string `json:"outcome"`
	OrderID     string `json:"order_id,omitempty"`
	Cost        int64  `json:"cost"`
	DownloadURL string `json:"download_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Refunded    int64  `json:"refunded,omitempty"`
}

// BatchResponse is returned by batch submission.
type BatchResponse struct {
	BatchID    string         `json:"batch_id,omitempty"`
	State      string         `json:"state"`
	Items      []ItemResponse `json:"items"`
	TotalCost  int64          `json:"total_cost"`
	Refunded   int64          `json:"refunded"`
	NewBalance int64          `json:"new_balance"`
}

// BatchStatusResponse is a point-in-time view of a batch.
type BatchStatusResponse struct {
	BatchID   string         `json:"batch_id"`
	State     string         `json:"state"`
	TotalCost int64          `json:"total_cost"`
	Items     []ItemResponse `json:"items"`
}
