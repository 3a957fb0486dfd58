package logfilewriter

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/llmspell/spellkernel/src/kernel/internal/connectionfile/connectionfilemock"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs/fsmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetupOutputWriter(t *testing.T) {
	ctrl := gomock.NewController(t)
	connectionFileMock := connectionfilemock.NewMockConnectionFile(ctrl)
	fsMock := fsmock.NewMockKernelFS(ctrl)

	p := Params{
		Lifecycle:      fxtest.NewLifecycle(t),
		ConnectionFile: connectionFileMock,
		FS:             fsMock,
	}

	t.Run("success", func(t *testing.T) {
		fsMock.EXPECT().MkdirAll(gomock.Any()).Return(nil)
		file, err := os.CreateTemp(t.TempDir(), "")
		require.NoError(t, err)
		fsMock.EXPECT().TempFile(gomock.Any(), gomock.Any()).Return(file, nil)
		connectionFileMock.EXPECT().UpdateField(fmt.Sprintf(_fmtOutputKey, "script-runtime"), file.Name()).Return(nil)

		writer, err := SetupOutputWriter(p, "script-runtime")
		require.NoError(t, err)
		assert.Equal(t, file.Name(), writer.Path())

		_, err = writer.Stream("s1", "stdout").Write([]byte("left behind\n"))
		assert.NoError(t, err)
	})

	t.Run("mkdir fail", func(t *testing.T) {
		fsMock.EXPECT().MkdirAll(gomock.Any()).Return(errors.New("sample"))
		_, err := SetupOutputWriter(p, "script-runtime")
		assert.Error(t, err)
	})

	t.Run("tempfile fail", func(t *testing.T) {
		fsMock.EXPECT().MkdirAll(gomock.Any()).Return(nil)
		fsMock.EXPECT().TempFile(gomock.Any(), gomock.Any()).Return(nil, errors.New("sample"))
		_, err := SetupOutputWriter(p, "script-runtime")
		assert.Error(t, err)
	})

	t.Run("connection file fail", func(t *testing.T) {
		fsMock.EXPECT().MkdirAll(gomock.Any()).Return(nil)
		file, err := os.CreateTemp(t.TempDir(), "")
		require.NoError(t, err)
		fsMock.EXPECT().TempFile(gomock.Any(), gomock.Any()).Return(file, nil)
		connectionFileMock.EXPECT().UpdateField(gomock.Any(), gomock.Any()).Return(errors.New("sample"))
		_, err = SetupOutputWriter(p, "script-runtime")
		assert.Error(t, err)
	})
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(&buf),
		zap.InfoLevel,
	)
	w := &OutputWriter{logger: zap.New(core).Sugar()}

	_, err := w.Stream("s1", "stderr").Write([]byte("first\nsecond\n\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[0], `"session": "s1"`)
	assert.Contains(t, lines[1], `"stream": "stderr"`)
}
