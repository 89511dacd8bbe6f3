package tuvok

import "time"

// ModeFlag is a log severity.  Messages below the current mode are dropped.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var modeNames = [...]string{"debug", "info", "warning", "error", "critical", "silent"}

func (m ModeFlag) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

var (
	// Verbose logs debug messages whatever the mode, e.g. per-brick uploads and
	// evictions of the memory manager.
	Verbose bool

	mode = InfoMode
)

// Logger receives the messages of the quantizer, converter and memory manager.
// Messages are fmt.Printf formats and usually end in a newline.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// Criticalf reports broken invariants such as memory accounting that does
	// not return to zero.
	Criticalf(format string, args ...interface{})

	// Shutdown flushes and closes any log file.
	Shutdown()
}

// SetLogMode sets the lowest severity that is logged.  SilentMode drops
// everything.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

// LogMode returns the lowest severity that is logged.
func LogMode() ModeFlag {
	return mode
}

func logs(level ModeFlag) bool {
	return mode <= level || (level == DebugMode && Verbose)
}

func Debugf(format string, args ...interface{}) {
	if logs(DebugMode) {
		logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if logs(InfoMode) {
		logger.Infof(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if logs(WarningMode) {
		logger.Warningf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if logs(ErrorMode) {
		logger.Errorf(format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if logs(CriticalMode) {
		logger.Criticalf(format, args...)
	}
}

// TimeLog appends the time elapsed since its creation to each message, for
// timing scans, quantization passes and dataset loads:
//
//	timedLog := NewTimeLog()
//	...
//	timedLog.Infof("Quantized %d voxels", n)
type TimeLog struct {
	logger Logger
	start  time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{logger, time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if logs(DebugMode) {
		t.logger.Debugf(format+": %s\n", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if logs(InfoMode) {
		t.logger.Infof(format+": %s\n", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	if logs(WarningMode) {
		t.logger.Warningf(format+": %s\n", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	if logs(ErrorMode) {
		t.logger.Errorf(format+": %s\n", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Shutdown() {
	t.logger.Shutdown()
}
