// Package prompt turns a chart request into the instruction pair sent to
// the completion endpoint.
package prompt

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lifeline/internal/chart"
	"github.com/sells-group/lifeline/internal/model"
)

var (
	// ErrInvalidGender is returned when the request gender is not recognized.
	ErrInvalidGender = eris.New("prompt: gender must be Male or Female")
	// ErrMissingPillar is returned when the year pillar is empty.
	ErrMissingPillar = eris.New("prompt: year pillar is required")
)

// Instruction is the system and user text for one completion request.
type Instruction struct {
	System string
	User   string
}

// Builder renders instructions. It holds no per-request state.
type Builder struct {
	system string
}

// NewBuilder returns a Builder using the built-in system instruction.
func NewBuilder() *Builder {
	return &Builder{system: SystemInstruction}
}

// WithSystem returns a copy of b using a different system instruction.
func (b *Builder) WithSystem(system string) *Builder {
	return &Builder{system: clean(system)}
}

// Build renders the instruction for req. A non-empty UserPrompt on the
// request replaces the generated user text.
func (b *Builder) Build(req model.AnalysisRequest) (Instruction, error) {
	if !req.Gender.Valid() {
		return Instruction{}, ErrInvalidGender
	}
	if strings.TrimSpace(req.YearPillar) == "" {
		return Instruction{}, ErrMissingPillar
	}

	if override := clean(req.UserPrompt); override != "" {
		return Instruction{System: b.system, User: override}, nil
	}
	return Instruction{System: b.system, User: userText(req)}, nil
}

func userText(req model.AnalysisRequest) string {
	plan := chart.NewPlan(req)
	polarity := chart.StemPolarity(req.YearPillar)

	gender := "女 (坤造)"
	if req.Gender == model.GenderMale {
		gender = "男 (乾造)"
	}
	name := clean(req.Name)
	if name == "" {
		name = "未提供"
	}

	direction, order := "逆行 (Backward)", "逆排"
	if plan.Forward {
		direction, order = "顺行 (Forward)", "顺排"
	}
	first := clean(req.FirstDaYun)
	second := chart.Step(first, 1)
	if !plan.Forward {
		second = chart.Step(first, -1)
	}

	var sb strings.Builder
	sb.WriteString("请根据以下已经排好的八字四柱和指定的大运信息进行分析。\n\n")

	sb.WriteString("【基本信息】\n")
	fmt.Fprintf(&sb, "性别：%s\n", gender)
	fmt.Fprintf(&sb, "姓名：%s\n", name)
	fmt.Fprintf(&sb, "出生年份：%d年 (阳历)\n\n", req.BirthYear)

	sb.WriteString("【八字四柱】\n")
	fmt.Fprintf(&sb, "年柱：%s (天干属性：%s)\n", clean(req.YearPillar), polarity)
	fmt.Fprintf(&sb, "月柱：%s\n", clean(req.MonthPillar))
	fmt.Fprintf(&sb, "日柱：%s\n", clean(req.DayPillar))
	fmt.Fprintf(&sb, "时柱：%s\n\n", clean(req.HourPillar))

	sb.WriteString("【大运核心参数】\n")
	fmt.Fprintf(&sb, "1. 起运年龄：%d 岁 (虚岁)。\n", plan.StartAge)
	fmt.Fprintf(&sb, "2. 第一步大运：%s。\n", first)
	fmt.Fprintf(&sb, "3. 排序方向：%s。\n\n", direction)

	sb.WriteString("【大运序列】\n")
	if second != "" {
		fmt.Fprintf(&sb, "第一步是【%s】，第二步则是【%s】，依此按六十甲子%s推导其余各步。\n", first, second, order)
	} else {
		fmt.Fprintf(&sb, "以【%s】为第一步，按六十甲子%s推导其余 9 步。\n", first, order)
	}
	if plan.StartAge > 1 {
		fmt.Fprintf(&sb, "- Age 1 到 %d: daYun = \"%s\"\n", plan.StartAge-1, chart.ChildhoodLabel)
	}
	for i := 0; i < 3; i++ {
		lo := plan.StartAge + i*chart.SpanYears
		fmt.Fprintf(&sb, "- Age %d 到 %d: daYun = [第%d步大运]\n", lo, lo+chart.SpanYears-1, i+1)
	}
	sb.WriteString("- ...以此类推直到 100 岁。\n\n")

	sb.WriteString("【字段说明】\n")
	sb.WriteString("- daYun 填大运干支（10年一变），不要填流年干支。\n")
	sb.WriteString("- ganZhi 填该年份的流年干支（每年一变）。\n\n")

	sb.WriteString("任务：生成 1-100 岁 (虚岁) 的人生流年K线数据与带评分的命理分析报告，严格按照系统指令输出 JSON。\n")
	return sb.String()
}

// clean trims and NFC-normalizes caller text so composed and decomposed
// forms of the same characters render identically.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
