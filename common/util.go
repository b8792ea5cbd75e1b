package common

import (
	"io"

	log "github.com/sirupsen/logrus"
)

func InvokeCloser(closer io.Closer) {
	if closer != nil {
		if err := closer.Close(); err != nil {
			log.Errorf("failed to close closer %v", err)
		}
	}
}

func CopyByteSlice(buff []byte) []byte {
	res := make([]byte, len(buff))
	copy(res, buff)
	return res
}
