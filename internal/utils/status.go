package utils

import "github.com/mahirjain10/convertkit/internal/types"

func InitStatusData(id string, status string, payload string, mimeType string, errorMsg string) *types.StatusData {
	return &types.StatusData{ID: id, Status: status, Payload: payload, MimeType: mimeType, ErrorMsg: errorMsg}
}

func InitStatusMessage(data *types.StatusData) *types.StatusMessage {
	return &types.StatusMessage{Pattern: types.StatusPattern, Data: *data}
}

// StatusFromResult turns an encoder result into the worker's reply payload.
func StatusFromResult(id string, result types.ConversionResult) *types.StatusData {
	if result.Failed() {
		return InitStatusData(id, types.FAILED, "", "", result.Message)
	}
	return InitStatusData(id, types.PROCESSED, result.Payload, result.MimeType, "")
}

// ResultFromStatus is the inverse of StatusFromResult.
func ResultFromStatus(data types.StatusData) types.ConversionResult {
	if data.Status != types.PROCESSED {
		return types.Failure(data.ErrorMsg)
	}
	return types.Success(data.Payload, data.MimeType)
}
