// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package log

import (
	"fmt"

	"github.com/cihub/seelog"
)

const logFormat = "%Date(2006-01-02 15:04:05 MST) | %LEVEL | (%ShortFilePath:%Line in %FuncShort) | %Msg%n"

// BuildLogger creates a seelog logger writing to the console and, when
// logFile is not empty, to a rolling file as well.
func BuildLogger(level string, logFile string) (seelog.LoggerInterface, error) {
	configTemplate := `<seelog minlevel="%s">
	<outputs formatid="common">
		<console />%s
	</outputs>
	<formats>
		<format id="common" format="%s"/>
	</formats>
</seelog>`

	fileTag := ""
	if logFile != "" {
		fileTag = fmt.Sprintf(`
		<rollingfile type="size" filename="%s" maxsize="10000000" maxrolls="1" />`, logFile)
	}

	config := fmt.Sprintf(configTemplate, level, fileTag, logFormat)
	return seelog.LoggerFromConfigAsString(config)
}

// SetupFromConfig builds and installs the logger singleton in one call.
func SetupFromConfig(level string, logFile string) error {
	l, err := BuildLogger(level, logFile)
	if err != nil {
		return err
	}
	SetupLogger(l, level)
	return nil
}
