package reconstruct

import "github.com/oriys/txgraph/internal/codec"

func decodeReturnData(text string) ([]byte, error) {
	return codec.DecodeBase64(text)
}
