package forecast

import "strings"

// conditionDescriptions is the CPTEC weather code vocabulary. The feed adds
// codes over time; unknown ones fall back to unknownCondition.
var conditionDescriptions = map[string]string{
	"ec":  "Encoberto com chuvas isoladas",
	"ci":  "Chuvas isoladas",
	"c":   "Chuva",
	"in":  "Instável",
	"pp":  "Possibilidade de pancadas de chuva",
	"cm":  "Chuva pela manhã",
	"cn":  "Chuva à noite",
	"ct":  "Chuva à tarde",
	"pt":  "Pancadas de chuva à tarde",
	"pm":  "Pancadas de chuva pela manhã",
	"pnt": "Pancadas de chuva à noite",
	"np":  "Nublado e pancadas de chuva",
	"pc":  "Pancadas de chuva",
	"pn":  "Parcialmente nublado",
	"cv":  "Chuvisco",
	"ch":  "Chuvoso",
	"t":   "Tempestade",
	"ps":  "Predomínio de sol",
	"e":   "Encoberto",
	"n":   "Nublado",
	"cl":  "Céu claro",
	"nv":  "Nevoeiro",
	"g":   "Geada",
	"ne":  "Neve",
	"nd":  "Não definido",
	"psc": "Possibilidade de chuva",
	"pcm": "Possibilidade de chuva pela manhã",
	"pct": "Possibilidade de chuva à tarde",
	"pcn": "Possibilidade de chuva à noite",
	"npt": "Nublado com pancadas à tarde",
	"npn": "Nublado com pancadas à noite",
	"npm": "Nublado com pancadas pela manhã",
	"npp": "Nublado com possibilidade de chuva",
	"ncn": "Nublado com possibilidade de chuva à noite",
	"nct": "Nublado com possibilidade de chuva à tarde",
	"ncm": "Nublado com possibilidade de chuva pela manhã",
	"vn":  "Variação de nebulosidade",
	"ppn": "Possibilidade de pancadas de chuva à noite",
	"ppt": "Possibilidade de pancadas de chuva à tarde",
	"ppm": "Possibilidade de pancadas de chuva pela manhã",
}

const unknownCondition = "Não definido"

// DescribeCondition returns the Portuguese description of a condition code.
func DescribeCondition(code string) string {
	if d, ok := conditionDescriptions[strings.ToLower(strings.TrimSpace(code))]; ok {
		return d
	}
	return unknownCondition
}
