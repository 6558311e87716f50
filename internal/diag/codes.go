package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка - на первое время
	UnknownCode Code = 0

	// Конфигурация и манифест
	CfgInfo             Code = 1000
	CfgManifestNotFound Code = 1001
	CfgManifestParse    Code = 1002
	CfgMissingField     Code = 1003
	CfgInvalidValue     Code = 1004
	CfgPresetFileError  Code = 1005
	CfgUnknownPreset    Code = 1006
	CfgDuplicateLibrary Code = 1007
	CfgInvalidScope     Code = 1008
	CfgInvalidKind      Code = 1009

	// Оси подстановки
	AxsInfo               Code = 2000
	AxsInvalidDeclaration Code = 2001
	AxsInvalidToken       Code = 2002
	AxsEmptyAxis          Code = 2003
	AxsInvalidPair        Code = 2004
	AxsInvalidTag         Code = 2005
	AxsDuplicateTag       Code = 2006
	AxsDuplicateToken     Code = 2007
	AxsNoAxes             Code = 2008
	AxsUnusedAxis         Code = 2009

	// Шаблоны
	TplInfo                 Code = 3000
	TplNotFound             Code = 3001
	TplUnreadable           Code = 3002
	TplUndefinedPlaceholder Code = 3003
	TplBadDirective         Code = 3004

	// Генерация файлов
	GenInfo            Code = 4000
	GenCreateDirFailed Code = 4001
	GenWriteFailed     Code = 4002
	GenNameCollision   Code = 4003
	GenStaleFiles      Code = 4004

	// Граф сборки
	GrfInfo              Code = 5000
	GrfDuplicateTarget   Code = 5001
	GrfUnknownDependency Code = 5002
	GrfUnknownConsumer   Code = 5003
	GrfDependencyCycle   Code = 5004
	GrfSelfDependency    Code = 5005
	GrfDependencyFailed  Code = 5006

	// Внешний тулчейн (компиляция, архивация, линковка)
	TlcInfo             Code = 6000
	TlcCompilerNotFound Code = 6001
	TlcCompileFailed    Code = 6002
	TlcArchiveFailed    Code = 6003
	TlcLinkFailed       Code = 6004

	// Observability
	ObsInfo    Code = 7000
	ObsTimings Code = 7001
)

var ( // todo расширить описания и использовать как notes
	codeDescription = map[Code]string{
		UnknownCode:         "Unknown error",
		CfgInfo:             "Configuration information",
		CfgManifestNotFound: "Manifest not found",
		CfgManifestParse:    "Manifest parse error",
		CfgMissingField:     "Missing manifest field",
		CfgInvalidValue:     "Invalid manifest value",
		CfgPresetFileError:  "Axis preset catalog error",
		CfgUnknownPreset:    "Unknown axis preset",
		CfgDuplicateLibrary: "Duplicate library name",
		CfgInvalidScope:     "Invalid link scope",
		CfgInvalidKind:      "Invalid consumer kind",

		AxsInfo:               "Axis information",
		AxsInvalidDeclaration: "Invalid axis declaration",
		AxsInvalidToken:       "Invalid axis token",
		AxsEmptyAxis:          "Axis has no values",
		AxsInvalidPair:        "Invalid axis value pair",
		AxsInvalidTag:         "Invalid short tag",
		AxsDuplicateTag:       "Duplicate short tag in axis",
		AxsDuplicateToken:     "Duplicate axis token",
		AxsNoAxes:             "No axes declared",
		AxsUnusedAxis:         "Axis token never used in template",

		TplInfo:                 "Template information",
		TplNotFound:             "Template not found",
		TplUnreadable:           "Template not readable",
		TplUndefinedPlaceholder: "Placeholder has no axis",
		TplBadDirective:         "Malformed tokens directive",

		GenInfo:            "Generation information",
		GenCreateDirFailed: "Cannot create output directory",
		GenWriteFailed:     "Cannot write generated file",
		GenNameCollision:   "Generated file name collision",
		GenStaleFiles:      "Stale files in output directory",

		GrfInfo:              "Build graph information",
		GrfDuplicateTarget:   "Duplicate target in build graph",
		GrfUnknownDependency: "Unknown dependency",
		GrfUnknownConsumer:   "Unknown consumer target",
		GrfDependencyCycle:   "Dependency cycle detected",
		GrfSelfDependency:    "Target depends on itself",
		GrfDependencyFailed:  "Dependency target has errors",

		TlcInfo:             "Toolchain information",
		TlcCompilerNotFound: "Compiler not found",
		TlcCompileFailed:    "Compilation failed",
		TlcArchiveFailed:    "Archiving failed",
		TlcLinkFailed:       "Linking failed",

		ObsInfo:    "Observability information",
		ObsTimings: "Pipeline timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("CFG%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("AXS%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("TPL%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("GEN%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("GRF%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("TLC%04d", ic)
	case ic >= 7000 && ic < 8000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
