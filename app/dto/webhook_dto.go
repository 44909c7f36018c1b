package dto

// DeliveryStatusCallbackRequest is the provider status callback.
// JSON bodies use the camelCase names; form bodies use the provider's field names.
type DeliveryStatusCallbackRequest struct {
	ProviderMessageID string `json:"providerMessageId" form:"MessageSid"`
	Status            string `json:"status" form:"MessageStatus"`
	AccountRef        string `json:"accountRef" form:"AccountSid"`
	ErrorCode         string `json:"errorCode,omitempty" form:"ErrorCode"`
	ErrorMessage      string `json:"errorMessage,omitempty" form:"ErrorMessage"`
}

// DeliveryStatusCallbackResponse acknowledges a callback
type DeliveryStatusCallbackResponse struct {
	Matched             bool   `json:"matched"`
	Applied             bool   `json:"applied"`
	SendRecordID        *uint  `json:"send_record_id,omitempty"`
	Status              string `json:"status,omitempty"`
	KnownStatus         bool   `json:"known_status"`
	AutomationFinalized bool   `json:"automation_finalized"`
}
