package utils

import (
	"fmt"
	"math/rand"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/tmthrgd/go-hex"
)

var (
	seedMu sync.Mutex
	seed   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// FileIsExist reports whether the named file or directory exists.
func FileIsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil || !os.IsNotExist(err)
}

// GenPseudoUniqId returns a 53 bit id. Collisions are possible but rare.
func GenPseudoUniqId() uint64 {
	nano := time.Now().UnixNano()

	seedMu.Lock()
	r1, r2 := seed.Int63(), seed.Int63()
	shift1, shift2 := seed.Intn(16)+2, seed.Intn(8)+1
	seedMu.Unlock()

	return uint64(((r1 >> uint(shift1)) + (r2 >> uint(shift2)) + (nano >> 1)) & 0x1FFFFFFFFFFFFF)
}

// GenLogId generates the log id carried by every record of a request.
func GenLogId() string {
	return fmt.Sprintf("%d_%d", time.Now().Unix(), GenPseudoUniqId())
}

// GetFuncCall returns "file:line" and the function name of the caller at callDepth.
func GetFuncCall(callDepth int) (string, string) {
	pc, file, line, ok := runtime.Caller(callDepth)
	if !ok {
		return "???:0", "???"
	}

	_, function := path.Split(runtime.FuncForPC(pc).Name())
	_, filename := path.Split(file)
	return filename + ":" + strconv.Itoa(line), function
}

// GetCurFileDir returns the directory of the calling source file.
func GetCurFileDir() string {
	_, filename, _, _ := runtime.Caller(1)
	return path.Dir(filename)
}

// F prints bytes as lower case hex.
func F(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeId decodes a hex id, nil on malformed input.
func DecodeId(str string) []byte {
	raw, err := hex.DecodeString(str)
	if err != nil {
		return nil
	}
	return raw
}
