// Package scenario loads Lua duel scenarios and plays them through the engine.
package scenario

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/rules/duel"
)

const scenarioTypeName = "scenario"

// Answer kinds a script can queue for a player.
const (
	AnswerPlay   = "play"
	AnswerPass   = "pass"
	AnswerTarget = "target"
)

// Expectation kinds checked after the game ends.
const (
	ExpectWinner = "winner"
	ExpectTurns  = "turns"
	ExpectLife   = "life"
)

// Scenario is a loaded script.
type Scenario struct {
	Name    string
	Setup   duel.Setup
	AI      map[object.ID]AISeat
	Answers map[object.ID][]Answer
	Expect  []Expectation
}

// AISeat seats a search decision maker.
type AISeat struct {
	Depth   int
	Threads int
}

// Answer is one queued answer. Card names a card in the player's hand.
type Answer struct {
	Kind   string
	Card   string
	Target object.ID
}

// Expectation is a checked outcome.
type Expectation struct {
	Kind   string
	Player object.ID
	Value  int
}

// LoadScenarioFromFile runs the Lua script at path and returns the scenario
// it builds.
func LoadScenarioFromFile(path string) (*Scenario, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerLuaTypes(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}
	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("scenario script must return Scenario")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	scenario, ok := ud.(*Scenario)
	if !ok || scenario == nil {
		return nil, fmt.Errorf("scenario script returned invalid Scenario")
	}
	if strings.TrimSpace(scenario.Name) == "" {
		scenario.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if scenario.Setup.Life <= 0 {
		return nil, fmt.Errorf("scenario %s: life must be positive", scenario.Name)
	}
	return scenario, nil
}

func registerLuaTypes(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{{Name: "new", Function: scenarioNew}}, 0)
	state.SetGlobal("Scenario")
}

func scenarioNew(state *lua.State) int {
	scenario := &Scenario{
		Name:    lua.OptString(state, 1, ""),
		AI:      map[object.ID]AISeat{},
		Answers: map[object.ID][]Answer{},
	}
	state.PushUserData(scenario)
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "player", Function: scenarioPlayer},
	{Name: "life", Function: scenarioLife},
	{Name: "max_turns", Function: scenarioMaxTurns},
	{Name: "ai", Function: scenarioAI},
	{Name: "play", Function: scenarioPlay},
	{Name: "pass", Function: scenarioPass},
	{Name: "target", Function: scenarioTarget},
	{Name: "expect_winner", Function: scenarioExpectWinner},
	{Name: "expect_turns", Function: scenarioExpectTurns},
	{Name: "expect_life", Function: scenarioExpectLife},
}

// s:player(1, { name = "Ada", hand = { { name = "bolt", power = 2 } } })
func scenarioPlayer(state *lua.State) int {
	scenario := checkScenario(state)
	player := checkPlayer(state, 2)
	opts := optionalTable(state, 3)
	index := int(player) - 1
	if name, ok := opts["name"].(string); ok {
		scenario.Setup.Names[index] = name
	}
	hand, _ := opts["hand"].([]any)
	for i, entry := range hand {
		card, ok := entry.(map[string]any)
		if !ok {
			lua.Errorf(state, "player %d card %d must be a table", player, i+1)
			return 0
		}
		name, _ := card["name"].(string)
		power, _ := card["power"].(int)
		if name == "" {
			lua.Errorf(state, "player %d card %d needs a name", player, i+1)
			return 0
		}
		scenario.Setup.Hands[index] = append(scenario.Setup.Hands[index], duel.Card{Name: name, Power: power})
	}
	return 0
}

func scenarioLife(state *lua.State) int {
	scenario := checkScenario(state)
	scenario.Setup.Life = lua.CheckInteger(state, 2)
	return 0
}

func scenarioMaxTurns(state *lua.State) int {
	scenario := checkScenario(state)
	scenario.Setup.MaxTurns = lua.CheckInteger(state, 2)
	return 0
}

func scenarioAI(state *lua.State) int {
	scenario := checkScenario(state)
	player := checkPlayer(state, 2)
	opts := optionalTable(state, 3)
	seat := AISeat{Depth: 1, Threads: 1}
	if depth, ok := opts["depth"].(int); ok {
		seat.Depth = depth
	}
	if threads, ok := opts["threads"].(int); ok {
		seat.Threads = threads
	}
	scenario.AI[player] = seat
	return 0
}

func scenarioPlay(state *lua.State) int {
	scenario := checkScenario(state)
	player := checkPlayer(state, 2)
	card := lua.CheckString(state, 3)
	scenario.Answers[player] = append(scenario.Answers[player], Answer{Kind: AnswerPlay, Card: card})
	return 0
}

func scenarioPass(state *lua.State) int {
	scenario := checkScenario(state)
	player := checkPlayer(state, 2)
	scenario.Answers[player] = append(scenario.Answers[player], Answer{Kind: AnswerPass})
	return 0
}

func scenarioTarget(state *lua.State) int {
	scenario := checkScenario(state)
	player := checkPlayer(state, 2)
	target := checkPlayer(state, 3)
	scenario.Answers[player] = append(scenario.Answers[player], Answer{Kind: AnswerTarget, Target: target})
	return 0
}

func scenarioExpectWinner(state *lua.State) int {
	scenario := checkScenario(state)
	winner := lua.CheckInteger(state, 2)
	scenario.Expect = append(scenario.Expect, Expectation{Kind: ExpectWinner, Value: winner})
	return 0
}

func scenarioExpectTurns(state *lua.State) int {
	scenario := checkScenario(state)
	turns := lua.CheckInteger(state, 2)
	scenario.Expect = append(scenario.Expect, Expectation{Kind: ExpectTurns, Value: turns})
	return 0
}

func scenarioExpectLife(state *lua.State) int {
	scenario := checkScenario(state)
	player := checkPlayer(state, 2)
	life := lua.CheckInteger(state, 3)
	scenario.Expect = append(scenario.Expect, Expectation{Kind: ExpectLife, Player: player, Value: life})
	return 0
}

func checkScenario(state *lua.State) *Scenario {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if scenario, ok := ud.(*Scenario); ok && scenario != nil {
		return scenario
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

func checkPlayer(state *lua.State, index int) object.ID {
	player := object.ID(lua.CheckInteger(state, index))
	if player != duel.PlayerOne && player != duel.PlayerTwo {
		lua.ArgumentError(state, index, "player must be 1 or 2")
	}
	return player
}

func optionalTable(state *lua.State, index int) map[string]any {
	if state.IsNoneOrNil(index) || state.TypeOf(index) != lua.TypeTable {
		return map[string]any{}
	}
	return tableToMap(state, index)
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}
	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

// tableToGo returns a slice for sequence tables and a map otherwise.
func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	length := state.RawLength(index)
	if length == 0 {
		return tableToMap(state, index)
	}
	result := make([]any, 0, length)
	for i := 1; i <= length; i++ {
		state.RawGetInt(index, i)
		result = append(result, luaToGo(state, -1))
		state.Pop(1)
	}
	return result
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
