// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package curve

import (
	"fmt"
)

// ByName resolves a profile family from its command-line or REST name.
func ByName(name string) (Curve, error) {
	switch name {
	case "tanh":     return Tanh{}, nil
	case "powerexp": return PowerExp{}, nil
	case "exp":      return Exp{}, nil
	case "expbase":  return ExpBase{}, nil
	case "const":    return Const{}, nil
	case "sersic":   return Sersic{}, nil
	}
	return nil, fmt.Errorf("curve: unknown profile family %s; use tanh, powerexp, exp, expbase, const or sersic", name)
}
