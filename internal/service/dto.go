package service

// Notification is the outcome of a manual action, shown to the operator
type Notification struct {
	Type    string `json:"type"` // success or danger
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Success builds a success notification
func Success(title, message string) Notification {
	return Notification{Type: "success", Title: title, Message: message}
}

// Danger builds a failure notification
func Danger(title, message string) Notification {
	return Notification{Type: "danger", Title: title, Message: message}
}

// Ack is the acknowledgement returned to the supplier for a webhook
type Ack struct {
	Status  string `json:"status"` // success or error
	Message string `json:"message"`
}

// BatchResult summarizes a scheduler pass
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ImportParams selects the catalog page to import. CreateLocalProducts also
// creates a local product for every imported record that has none.
type ImportParams struct {
	Page                int    `json:"page"`
	PageSize            int    `json:"page_size"`
	CategoryID          string `json:"category_id"`
	CreateLocalProducts bool   `json:"create_local_products"`
}

// ImportResult summarizes a catalog import
type ImportResult struct {
	Imported     int `json:"imported"`
	Skipped      int `json:"skipped"`
	LocalCreated int `json:"local_created"`
}

// SyncResult summarizes a product sync
type SyncResult struct {
	Updated       int `json:"updated"`
	StockWarnings int `json:"stock_warnings"`
}
